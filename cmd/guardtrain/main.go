// Command guardtrain trains an anomaly-detection model from a collected
// feature table and exports it for the native scorer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/guardtrain/pkg/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "guardtrain",
		Short:        "Offline trainer for the traffic anomaly detection model",
		SilenceUsage: true,
	}

	root.AddCommand(newTrainCmd())
	return root
}

func newTrainCmd() *cobra.Command {
	var (
		dataPath     string
		modelPath    string
		metadataPath string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the model and write the ONNX artifact plus metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			p := pipeline.New(dataPath, modelPath, metadataPath,
				pipeline.WithLogger(log),
			)

			res, err := p.Run()
			if err != nil {
				return err
			}

			log.Info("training pipeline finished",
				zap.Int("training_samples", res.TrainRows),
				zap.Float64("average_anomaly_score", res.MeanScore),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "path to the collected feature CSV")
	cmd.Flags().StringVar(&modelPath, "model", "", "output path for the ONNX model artifact")
	cmd.Flags().StringVar(&metadataPath, "metadata", "", "output path for the model metadata JSON")
	cmd.MarkFlagRequired("data")
	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("metadata")

	return cmd
}

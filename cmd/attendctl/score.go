package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"faceattend/internal/face"
)

var scoreCmd = &cobra.Command{
	Use:   "score <a.json> <b.json>",
	Short: "Compare two face descriptors",
	Long: `Reads two JSON arrays of 128 numbers and prints their distance, the
confidence (1 - distance) and whether that confidence would be accepted.`,
	Args: cobra.ExactArgs(2),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().Float64("threshold", face.DefaultThreshold, "Confidence a match has to exceed")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	a, err := readDescriptor(args[0])
	if err != nil {
		return err
	}
	b, err := readDescriptor(args[1])
	if err != nil {
		return err
	}
	threshold, err := cmd.Flags().GetFloat64("threshold")
	if err != nil {
		return err
	}

	conf := face.Score(a, b)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Distance:   %.4f\n", face.Distance(a, b))
	fmt.Fprintf(out, "Confidence: %.4f (%.2f%%)\n", conf, face.Percent(conf))
	fmt.Fprintf(out, "Accepted:   %v\n", conf > threshold)
	return nil
}

func readDescriptor(path string) (face.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return face.Descriptor{}, err
	}
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return face.Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	d, err := face.FromFloat64s(v)
	if err != nil {
		return face.Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

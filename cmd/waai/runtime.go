package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/wa-assistant/internal/background"
	"github.com/lexiqai/wa-assistant/internal/pipeline"
	"github.com/lexiqai/wa-assistant/internal/runtime"
	"github.com/lexiqai/wa-assistant/internal/transcription"
)

const runtimeTimeout = 2 * time.Minute

// sender reaches the background process, in-process with --local
func sender(cmd *cobra.Command) (runtime.Sender, error) {
	if local, _ := cmd.Flags().GetBool("local"); local {
		router, _, _, err := background.Setup(cfg)
		if err != nil {
			return nil, err
		}
		return router, nil
	}
	return runtime.NewHTTPClient(cfg.ServerURL, runtimeTimeout), nil
}

func invoker(cmd *cobra.Command) (*transcription.Invoker, error) {
	rt, err := sender(cmd)
	if err != nil {
		return nil, err
	}
	return transcription.NewInvoker(rt), nil
}

func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		ReadyTimeout:     cfg.ReadyTimeout(),
		RequestTimeout:   cfg.RequestTimeout(),
		MaterializeDelay: cfg.MaterializeDelay(),
		ObjectURLTTL:     cfg.ObjectURLTTL(),
	}
}

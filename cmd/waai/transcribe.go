package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/runtime"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe an audio file",
	Long:  "Send an audio file (ogg, webm, mp3, mp4) to the background process and print its transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func init() {
	transcribeCmd.Flags().String("mime", "", "MIME type of the file (derived from the extension by default)")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}

	hint, _ := cmd.Flags().GetString("mime")
	payload, err := media.ProcessAudioSource(cmd.Context(), media.Blob{Data: data}, nil, media.Hints{
		MIMEType:     hint,
		MetadataMIME: mime.TypeByExtension(filepath.Ext(path)),
		FileName:     filepath.Base(path),
	})
	if err != nil {
		return err
	}

	inv, err := invoker(cmd)
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Transcribing %s (%d bytes, %s)...", payload.FileName, payload.Size(), payload.MIMEType))
	ctx, cancel := context.WithTimeout(cmd.Context(), runtimeTimeout)
	defer cancel()

	text, err := inv.Transcribe(ctx, payload, runtime.Metadata{Source: "file"})
	if err != nil {
		spinner.Fail("Transcription failed")
		return err
	}
	spinner.Success("Transcribed")
	fmt.Println(text)
	return nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lexiqai/wa-assistant/internal/assistant"
	"github.com/lexiqai/wa-assistant/internal/dom"
	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/pipeline"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <page.html>",
	Short: "Suggest a reply to a saved conversation",
	Long:  "Read the last messages of a saved WhatsApp Web page, transcribe its voice messages and print a suggested reply",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

func init() {
	suggestCmd.Flags().Int("history", assistant.DefaultHistory, "Number of recent messages to include")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	doc, err := dom.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	history, _ := cmd.Flags().GetInt("history")

	inv, err := invoker(cmd)
	if err != nil {
		return err
	}
	urls := media.NewObjectURLs(defaultOrigin)
	p := pipeline.New(doc, nil, inv, media.NewFetcher(urls, cfg.FetchTimeout()), urls, pipelineOptions())
	a := assistant.New(p, inv)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	spinner, _ := pterm.DefaultSpinner.Start("Reading conversation and transcribing voice messages...")
	lines, err := a.Collect(ctx, doc, history)
	if err != nil {
		spinner.Fail("Could not read the conversation")
		return err
	}
	spinner.Success(fmt.Sprintf("%d messages, %d voice", len(lines), lo.CountBy(lines, func(l assistant.Line) bool { return l.IsAudio })))

	rows := [][]string{{"From", "Message"}}
	for _, l := range lines {
		rows = append(rows, []string{l.Sender(), l.Text})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	if failed := lo.CountBy(lines, func(l assistant.Line) bool { return l.Failed }); failed > 0 {
		pterm.Warning.Printfln("%d voice message(s) could not be transcribed", failed)
	}

	spinner, _ = pterm.DefaultSpinner.Start("Generating reply...")
	reply, err := a.Suggest(ctx, lines)
	if err != nil {
		spinner.Fail("Could not generate a reply")
		return err
	}
	spinner.Stop()

	pterm.DefaultBox.WithTitle("Suggested reply").Println(reply)
	return nil
}

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lexiqai/wa-assistant/internal/bridge"
	"github.com/lexiqai/wa-assistant/internal/dom"
	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/pagestore"
	"github.com/lexiqai/wa-assistant/internal/pipeline"
	"github.com/lexiqai/wa-assistant/internal/resilience"
)

const defaultOrigin = "https://web.whatsapp.com"

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Work with a WhatsApp Web page",
}

var pageTranscribeCmd = &cobra.Command{
	Use:   "transcribe <page.html>",
	Short: "Transcribe a voice message of a page",
	Long: `Resolve and transcribe a voice message of a saved page. The page side of the
bridge is reached through the server's /bridge hub; with --store the page side is
started locally from a store snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: runPageTranscribe,
}

func init() {
	pageCmd.AddCommand(pageTranscribeCmd)

	pageTranscribeCmd.Flags().String("message", "", "data-id of the message to transcribe (latest voice message by default)")
	pageTranscribeCmd.Flags().String("store", "", "Store snapshot (JSON) served as the page side")
	pageTranscribeCmd.Flags().String("page", "default", "Bridge room shared with the page side")
	pageTranscribeCmd.Flags().String("origin", defaultOrigin, "Page origin")
	pageTranscribeCmd.Flags().Bool("no-bridge", false, "Only use strategies that read the page itself")
}

func reconnectConfig() *resilience.ReconnectConfig {
	rc := resilience.DefaultReconnectConfig()
	rc.MaxAttempts = cfg.ReconnectMaxAttempts
	rc.Backoff = time.Duration(cfg.ReconnectBackoff) * time.Millisecond
	return rc
}

// pageSide loads the store accessor from a snapshot onto its own bus connection,
// the way the page script is injected into a live page
type pageSide struct {
	storePath string
	hubURL    string
	origin    string

	mu    sync.Mutex
	stops []func()
}

func (p *pageSide) load(ctx context.Context) error {
	snap, err := pagestore.LoadSnapshot(p.storePath)
	if err != nil {
		return err
	}
	bus, err := bridge.DialWSBus(ctx, p.hubURL, p.origin, reconnectConfig())
	if err != nil {
		return err
	}

	urls := media.NewObjectURLs(p.origin)
	acc := pagestore.NewAccessor(snap.Scope(), bus, media.NewFetcher(urls, cfg.FetchTimeout()), pagestore.DefaultOptions())
	stop := acc.Start(context.WithoutCancel(ctx))

	p.mu.Lock()
	p.stops = append(p.stops, stop, func() { _ = bus.Close() })
	p.mu.Unlock()
	return nil
}

func (p *pageSide) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, stop := range lo.Reverse(p.stops) {
		stop()
	}
	p.stops = nil
}

func runPageTranscribe(cmd *cobra.Command, args []string) error {
	messageID, _ := cmd.Flags().GetString("message")
	storePath, _ := cmd.Flags().GetString("store")
	room, _ := cmd.Flags().GetString("page")
	origin, _ := cmd.Flags().GetString("origin")
	noBridge, _ := cmd.Flags().GetBool("no-bridge")

	doc, err := dom.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	inv, err := invoker(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runtimeTimeout)
	defer cancel()

	var br pipeline.Bridge
	if !noBridge {
		hubURL, err := bridge.HubURL(cfg.ServerURL, room)
		if err != nil {
			return err
		}
		bus, err := bridge.DialWSBus(ctx, hubURL, origin, reconnectConfig())
		if err != nil {
			return fmt.Errorf("connect to bridge hub (use --no-bridge to skip): %w", err)
		}
		defer bus.Close()

		var injector bridge.Injector = bridge.PresentInjector{}
		if storePath != "" {
			side := &pageSide{storePath: storePath, hubURL: hubURL, origin: origin}
			defer side.close()
			injector = bridge.NewScriptInjector(side.load)
		}

		coord := bridge.NewCoordinator(bus, injector, bridge.ParsePolicy(cfg.BridgeTimeoutPolicy))
		defer coord.Close()
		br = coord
	}

	urls := media.NewObjectURLs(origin)
	p := pipeline.New(doc, br, inv, media.NewFetcher(urls, cfg.FetchTimeout()), urls, pipelineOptions())

	target, err := targetMessage(doc, messageID)
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Resolving voice message...")
	var text string
	if target != nil {
		text, err = p.TranscribeAudio(ctx, target)
	} else {
		text, err = p.TranscribeLatest(ctx)
	}
	if err != nil {
		spinner.Fail("Transcription failed")
		return err
	}
	spinner.Success("Transcribed")
	fmt.Println(text)
	return nil
}

// targetMessage picks the requested message, else the last voice message on the
// page; nil means the most recent voice message of the active chat
func targetMessage(doc dom.Document, messageID string) (dom.Element, error) {
	if messageID != "" {
		el, ok := dom.Query(doc, fmt.Sprintf(`[data-id=%q]`, messageID))
		if !ok {
			return nil, fmt.Errorf("message %s not found on the page", messageID)
		}
		return el, nil
	}
	voice := lo.Filter(dom.Messages(doc, 0), func(el dom.Element, _ int) bool { return dom.HasAudio(el) })
	if len(voice) == 0 {
		return nil, nil
	}
	return voice[len(voice)-1], nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/wa-assistant/internal/bridge"
	"github.com/lexiqai/wa-assistant/internal/dom"
	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/media"
)

// fromSource normalizes a URL found in the page
func (p *Pipeline) fromSource(ctx context.Context, src string) (*Resolution, error) {
	payload, err := media.ProcessAudioSource(ctx, src, p.fetcher, media.Hints{})
	if err != nil {
		return nil, err
	}
	return &Resolution{Payload: payload, Source: src}, nil
}

func (p *Pipeline) fromMessageAudio(ctx context.Context, msg dom.Element) (*Resolution, error) {
	src, ok := dom.MessageAudio(msg)
	if !ok {
		return nil, nil
	}
	return p.fromSource(ctx, src)
}

// fromBridge asks the page side for the message's blob, then for the most recent
// voice message. An empty messageID goes straight to the latter.
func (p *Pipeline) fromBridge(ctx context.Context, messageID string) (*Resolution, error) {
	if p.bridge == nil {
		return nil, nil
	}

	ready, err := p.bridge.EnsureReady(ctx, p.opts.ReadyTimeout)
	if err != nil {
		return nil, err
	}
	if !ready {
		if p.bridge.Policy() == bridge.PolicyFatal {
			return nil, errorsx.Wrap(ErrBridgeUnavailable, errorsx.ReasonReadinessTimeout)
		}
		return nil, errorsx.New(errorsx.ReasonReadinessTimeout, "page store not ready")
	}

	var errs []error
	if messageID != "" {
		res, err := p.callBridge(ctx, bridge.ActionGetAudioBlob, messageID)
		if err == nil {
			return res, nil
		}
		errs = append(errs, err)
	}

	res, err := p.callBridge(ctx, bridge.ActionGetLastAudioBlob, "")
	if err == nil {
		return res, nil
	}
	return nil, errors.Join(append(errs, err)...)
}

func (p *Pipeline) callBridge(ctx context.Context, action bridge.Action, messageID string) (*Resolution, error) {
	resp, err := p.bridge.Call(ctx, action, messageID, p.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if len(resp.Blob) == 0 {
		return nil, errorsx.Wrap(fmt.Errorf("%s: %w", action, media.ErrEmptyPayload), errorsx.ReasonPayloadInvalid)
	}

	var hints media.Hints
	if resp.Metadata != nil {
		hints.MetadataMIME = resp.Metadata.MIMEType
		hints.FileName = resp.Metadata.FileName
		if resp.Metadata.MessageID != "" {
			messageID = resp.Metadata.MessageID
		}
	}

	// The blob is exposed as a temporary object URL so later calls can reuse it
	url := p.urls.Create(media.Blob{Data: resp.Blob, Type: hints.MetadataMIME})
	defer p.urls.RevokeAfter(url, p.opts.ObjectURLTTL)

	payload, err := media.ProcessAudioSource(ctx, url, p.fetcher, hints)
	if err != nil {
		return nil, err
	}
	return &Resolution{Payload: payload, Source: url, MessageID: messageID}, nil
}

func (p *Pipeline) fromLastSource(ctx context.Context) (*Resolution, error) {
	src := p.LastSource()
	if src == "" {
		return nil, nil
	}
	return p.fromSource(ctx, src)
}

// fromPageScan tries every audio source on the page, newest first
func (p *Pipeline) fromPageScan(ctx context.Context) (*Resolution, error) {
	var errs []error
	for _, src := range dom.ScanAudio(p.doc) {
		res, err := p.fromSource(ctx, src)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// materialize clicks the message's play control so the host renders an audio
// element, then retries the message and page strategies
func (p *Pipeline) materialize(ctx context.Context, msg dom.Element) (*Resolution, error) {
	control, ok := dom.PlayControl(msg)
	if !ok {
		return nil, nil
	}
	if err := p.doc.Click(control); err != nil {
		return nil, fmt.Errorf("click play control: %w", err)
	}

	t := time.NewTimer(p.opts.MaterializeDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res, err := p.fromMessageAudio(ctx, msg)
	if err == nil && res != nil {
		return res, nil
	}
	return p.fromPageScan(ctx)
}

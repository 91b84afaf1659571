// Package policy narrows detector candidates to the regions that will
// be obscured. The stance throughout is fail-open toward privacy: when
// identity is uncertain (no classifier, tiny region, low adjusted
// confidence against a non-target), the safer answer is to blur.
package policy

import (
	"context"
	"image"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"screenveil/internal/detect"
	"screenveil/internal/frame"
	"screenveil/internal/logger"
)

// LabelUnknown marks regions whose identity could not be established.
const LabelUnknown = "unknown"

const (
	// labelCacheSize bounds the per-subject classification memo.
	labelCacheSize = 20

	// minClassifySize is the smallest region edge a classifier gets a
	// meaningful answer for. Smaller regions are unknown by definition.
	minClassifySize = 20

	// Pose discounts applied to classification confidence before
	// thresholding. Uncertain pose biases toward over-blur.
	profileDiscount = 0.9
	unknownDiscount = 0.8

	// paddingFraction is the outward expansion applied to each selected
	// region before blurring, hiding the detector's silhouette error.
	paddingFraction = 0.15
)

// BlurJob is the per-cycle set of regions to obscure, in processing
// space, with the padding factor the blur engine applies first.
type BlurJob struct {
	Regions []image.Rectangle
	Padding float64
}

// Empty reports whether the job selects nothing.
func (j BlurJob) Empty() bool { return len(j.Regions) == 0 }

// Policy selects which detections to obscure. Classification results
// are memoized per stable subject id so a stationary subject is not
// re-classified every cycle.
type Policy struct {
	mu         sync.Mutex
	classifier detect.Classifier
	labels     *lru.Cache[string, string]

	targetLabel string
	threshold   float64
	log         logger.Logger
}

// New builds a policy. classifier may be nil: detection alone then
// decides, and everything above the threshold is selected.
func New(classifier detect.Classifier, targetLabel string, threshold float64, log logger.Logger) (*Policy, error) {
	labels, err := lru.New[string, string](labelCacheSize)
	if err != nil {
		return nil, err
	}

	if classifier == nil {
		log.Info("FilterPolicy", "no classifier configured, selecting all detections above threshold", nil)
	}

	return &Policy{
		classifier:  classifier,
		labels:      labels,
		targetLabel: targetLabel,
		threshold:   threshold,
		log:         log,
	}, nil
}

// Select returns the blur job for one cycle's detections. buf is only
// consulted when a classifier is configured and a region needs a fresh
// classification; the policy never retains it.
func (p *Policy) Select(ctx context.Context, buf *frame.Buffer, detections []detect.Detection) BlurJob {
	p.mu.Lock()
	defer p.mu.Unlock()

	job := BlurJob{Padding: paddingFraction}
	for _, det := range detections {
		if det.Confidence < p.threshold {
			continue
		}
		if p.selects(ctx, buf, det) {
			job.Regions = append(job.Regions, det.Region)
		}
	}
	return job
}

func (p *Policy) selects(ctx context.Context, buf *frame.Buffer, det detect.Detection) bool {
	// Too small to classify reliably: unknown identity, so obscure it
	// without spending a model call.
	if det.Region.Dx() < minClassifySize || det.Region.Dy() < minClassifySize {
		return true
	}

	if p.classifier == nil {
		return true
	}

	// With a classifier configured only target matches are kept; an
	// unknown identity here means the model looked and did not match.
	return p.resolveLabel(ctx, buf, det) == p.targetLabel
}

func (p *Policy) resolveLabel(ctx context.Context, buf *frame.Buffer, det detect.Detection) string {
	if label, ok := p.labels.Get(det.StableID); ok {
		return label
	}

	result, err := p.classifier.Classify(ctx, buf, det.Region)
	if err != nil {
		p.log.Warning("FilterPolicy", "classification failed, treating region as unknown", map[string]interface{}{
			"stable_id": det.StableID,
			"error":     err.Error(),
		})
		return LabelUnknown
	}

	adjusted := result.Confidence
	switch result.Pose {
	case detect.PoseProfile:
		adjusted *= profileDiscount
	case detect.PoseUnknown:
		adjusted *= unknownDiscount
	}

	label := LabelUnknown
	if adjusted >= p.threshold {
		label = result.Label
	}

	p.labels.Add(det.StableID, label)
	return label
}

// InvalidateLabels drops every memoized classification. Called on
// window change: subject identity does not survive an app switch.
func (p *Policy) InvalidateLabels() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels.Purge()
}

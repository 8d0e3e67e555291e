package encoder

import (
	"sort"
	"sync"
)

// Config holds the hyper-parameters of a divided space-time video transformer.
type Config struct {
	ID           string `json:"vision_encoder_id"`
	Hidden       int    `json:"hidden_size"`
	Layers       int    `json:"num_hidden_layers"`
	Heads        int    `json:"num_attention_heads"`
	Intermediate int    `json:"intermediate_size"`
	PatchSize    int    `json:"patch_size"`
	ImageSize    int    `json:"image_size"`
	Channels     int    `json:"num_channels"`
	// Frames is the length of the pretrained time embedding; zero means the encoder has none.
	Frames       int     `json:"num_frames"`
	LayerNormEps float64 `json:"layer_norm_eps"`
}

// Patches returns the number of patches per frame.
func (c Config) Patches() int {
	side := c.ImageSize / c.PatchSize
	return side * side
}

// PatchDim returns the flattened size of one patch.
func (c Config) PatchDim() int {
	return c.Channels * c.PatchSize * c.PatchSize
}

// DefaultEncoderID is the encoder used when none is configured.
const DefaultEncoderID = "facebook/timesformer-base-finetuned-k400"

func timesformerBase(id string) Config {
	return Config{
		ID:           id,
		Hidden:       768,
		Layers:       12,
		Heads:        12,
		Intermediate: 3072,
		PatchSize:    16,
		ImageSize:    224,
		Channels:     3,
		Frames:       8,
		LayerNormEps: 1e-6,
	}
}

var (
	catalogMu sync.RWMutex
	catalog   = map[string]Config{
		DefaultEncoderID: timesformerBase(DefaultEncoderID),
		"facebook/timesformer-base-finetuned-k600": timesformerBase("facebook/timesformer-base-finetuned-k600"),
		"facebook/timesformer-base-finetuned-ssv2": timesformerBase("facebook/timesformer-base-finetuned-ssv2"),
		// small enough to train on a laptop; used for smoke runs
		"skillview/timesformer-tiny": {
			ID:           "skillview/timesformer-tiny",
			Hidden:       24,
			Layers:       2,
			Heads:        2,
			Intermediate: 48,
			PatchSize:    4,
			ImageSize:    16,
			Channels:     3,
			Frames:       8,
			LayerNormEps: 1e-6,
		},
	}
)

// Lookup returns the configuration registered for id.
func Lookup(id string) (Config, error) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	cfg, ok := catalog[id]
	if !ok {
		return Config{}, &ConfigMismatchError{What: "vision encoder", Detail: "unknown id " + id}
	}
	return cfg, nil
}

// Register adds or replaces a catalog entry.
func Register(cfg Config) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	catalog[cfg.ID] = cfg
}

// IDs lists the registered encoder ids.
func IDs() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	var ids []string
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

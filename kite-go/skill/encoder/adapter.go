package encoder

import (
	"fmt"
	"math/rand"

	"github.com/kiteco/skillview/kite-golib/nn"
)

// DefaultTargets are the sublayers adapted by default: both attentions, their
// output projections, the temporal projection and the MLP.
var DefaultTargets = []string{
	"attention.attention.qkv",
	"attention.output.dense",
	"temporal_attention.attention.qkv",
	"temporal_attention.output.dense",
	"intermediate.dense",
	"output.dense",
	"temporal_dense",
}

// AdapterSpec describes the low-rank adapters to attach to an encoder.
type AdapterSpec struct {
	Rank    int     `json:"r" yaml:"r"`
	Alpha   float64 `json:"lora_alpha" yaml:"lora_alpha"`
	Dropout float64 `json:"lora_dropout" yaml:"lora_dropout"`
	// Targets are sublayer paths within each transformer layer.
	Targets []string `json:"target_modules" yaml:"target_modules"`
	// Whitelist names base parameters that stay trainable.
	Whitelist []string `json:"modules_to_save,omitempty" yaml:"modules_to_save"`
}

// DefaultAdapterSpec returns rank 16, alpha 32, dropout 0.1 over DefaultTargets.
func DefaultAdapterSpec() AdapterSpec {
	return AdapterSpec{
		Rank:    16,
		Alpha:   32,
		Dropout: 0.1,
		Targets: append([]string(nil), DefaultTargets...),
	}
}

// Adaptable is a model whose linear sublayers can carry adapters.
type Adaptable interface {
	Params() []*nn.Param
	// Sublayers returns every linear layer at the given path, in layer order.
	Sublayers(path string) []*nn.Linear
}

// Inject freezes every parameter of enc, attaches an adapter to each linear layer named by
// spec.Targets and returns the parameters left trainable. It fails without modifying enc
// when a target matches nothing or the spec is invalid.
func Inject(enc Adaptable, spec AdapterSpec, rng *rand.Rand) ([]*nn.Param, error) {
	if spec.Rank < 1 {
		return nil, &ConfigMismatchError{What: "adapter", Detail: fmt.Sprintf("rank must be positive, got %d", spec.Rank)}
	}
	if spec.Dropout < 0 || spec.Dropout >= 1 {
		return nil, &ConfigMismatchError{What: "adapter", Detail: fmt.Sprintf("dropout %v out of range [0,1)", spec.Dropout)}
	}

	var layers []*nn.Linear
	seen := make(map[*nn.Linear]bool)
	for _, target := range spec.Targets {
		found := enc.Sublayers(target)
		if len(found) == 0 {
			return nil, &ConfigMismatchError{What: "adapter target", Detail: "no sublayer matches " + target}
		}
		for _, l := range found {
			if l.Adapter != nil {
				return nil, &ConfigMismatchError{What: "adapter target", Detail: l.Name + " already has an adapter"}
			}
			if !seen[l] {
				seen[l] = true
				layers = append(layers, l)
			}
		}
	}

	params := enc.Params()
	byName := make(map[string]*nn.Param, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}
	var keep []*nn.Param
	for _, name := range spec.Whitelist {
		p, ok := byName[name]
		if !ok {
			return nil, &ConfigMismatchError{What: "adapter whitelist", Detail: "no parameter named " + name}
		}
		keep = append(keep, p)
	}

	nn.Freeze(params)

	var trainable []*nn.Param
	for _, l := range layers {
		l.Adapter = nn.NewLoRA(l.Name, l.In(), l.Out(), spec.Rank, spec.Alpha, spec.Dropout, rng)
		trainable = append(trainable, l.Adapter.Params()...)
	}
	for _, p := range keep {
		p.Trainable = true
		trainable = append(trainable, p)
	}
	return trainable, nil
}

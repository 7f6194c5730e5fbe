package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/pflag"

	"github.com/sells-group/catalog-enrich/internal/config"
)

// overrideFlags are the per-run threshold flags shared by run, batch and
// pending.
type overrideFlags struct {
	gate1Pass    int
	gate1Caution int
	gate2Pass    int
	maxSources   int
	writeRetries int
	noVisual     bool
	noSemantic   bool
}

func (o *overrideFlags) register(fs *pflag.FlagSet) {
	def := config.DefaultPipelineConfig()
	fs.IntVar(&o.gate1Pass, "gate1-pass", def.Gate1PassThreshold, "source match confidence required for USE")
	fs.IntVar(&o.gate1Caution, "gate1-caution", def.Gate1CautionThreshold, "source match confidence required for USE_WITH_CAUTION")
	fs.IntVar(&o.gate2Pass, "gate2-pass", def.Gate2PassThreshold, "extraction accuracy required to pass")
	fs.IntVar(&o.maxSources, "max-sources", def.MaxSourcesPerItem, "maximum reference sources per item")
	fs.IntVar(&o.writeRetries, "write-retries", def.MaxWriteRetries, "write verification retries")
	fs.BoolVar(&o.noVisual, "no-visual", false, "disable visual comparison in source matching")
	fs.BoolVar(&o.noSemantic, "no-semantic", false, "disable semantic checks in source matching and extraction verification")
}

// build returns overrides for the flags the user actually set, or nil.
func (o *overrideFlags) build(fs *pflag.FlagSet) *config.PipelineOverrides {
	var ov config.PipelineOverrides
	set := false
	intFlag := func(name string, v int, dst **int) {
		if fs.Changed(name) {
			*dst = &v
			set = true
		}
	}
	intFlag("gate1-pass", o.gate1Pass, &ov.Gate1PassThreshold)
	intFlag("gate1-caution", o.gate1Caution, &ov.Gate1CautionThreshold)
	intFlag("gate2-pass", o.gate2Pass, &ov.Gate2PassThreshold)
	intFlag("max-sources", o.maxSources, &ov.MaxSourcesPerItem)
	intFlag("write-retries", o.writeRetries, &ov.MaxWriteRetries)
	if fs.Changed("no-visual") {
		enabled := !o.noVisual
		ov.EnableVisualComparison = &enabled
		set = true
	}
	if fs.Changed("no-semantic") {
		enabled := !o.noSemantic
		ov.EnableSemanticVerification = &enabled
		set = true
	}
	if !set {
		return nil
	}
	return &ov
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

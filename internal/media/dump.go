package media

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Dumper receives media types for diagnostics. It has no say in control flow.
type Dumper interface {
	DumpType(label string, t *Type)
}

type NopDumper struct{}

func (NopDumper) DumpType(string, *Type) {}

// LogDumper renders the attribute set as a YAML document and logs it at
// debug level.
type LogDumper struct {
	log *slog.Logger
}

func NewLogDumper(l *slog.Logger) *LogDumper { return &LogDumper{log: l} }

func (d *LogDumper) DumpType(label string, t *Type) {
	if !d.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	out, err := MarshalYAML(t)
	if err != nil {
		d.log.Debug("media type dump failed", "label", label, "err", err)
		return
	}
	d.log.Debug("media type", "label", label, "type", t.String(), "attributes", string(out))
}

// MarshalYAML encodes the attributes as an ordered YAML mapping.
func MarshalYAML(t *Type) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, a := range t.Attributes() {
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: string(a.Key)},
			&yaml.Node{Kind: yaml.ScalarNode, Value: FormatValue(a.Key, a.Value)},
		)
	}
	return yaml.Marshal(doc)
}

// FormatValue renders one attribute value. Packed pairs print as "a x b"
// for sizes and "a/b" for ratios.
func FormatValue(key Key, v any) string {
	switch x := v.(type) {
	case Size:
		return fmt.Sprintf("%d x %d", x.Width, x.Height)
	case Ratio:
		return x.String()
	case Subtype:
		if name, ok := subtypeNames[x]; ok {
			return name
		}
		return string(x)
	case []byte:
		return "<<byte array>>"
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

var subtypeNames = map[Subtype]string{
	SubtypeH264: "H264 (AVC Annex B)",
	SubtypeNV12: "NV12 (4:2:0, interleaved chroma)",
	SubtypeYV12: "YV12 (4:2:0, planar V then U)",
	SubtypeIYUV: "IYUV (4:2:0, planar)",
	SubtypeI420: "I420 (4:2:0, planar)",
	SubtypeYUY2: "YUY2 (4:2:2, packed)",
}

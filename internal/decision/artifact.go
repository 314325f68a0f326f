// Package decision holds the pump model artifact and the engine that turns a
// reading into a pump on/off command.
package decision

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
)

// NumClusters is the number of k-means clusters in an artifact.
const NumClusters = 2

var ErrInvalidArtifact = errors.New("decision: invalid model artifact")

// Artifact is a trained pump model: per-feature medians used to fill
// missing values, two cluster centroids, and the index of the cluster that
// means "pump on". Features are (temperature, humidity, soil_moisture).
type Artifact struct {
	Medians   [entities.NumFeatures]float64
	Centroids [NumClusters][entities.NumFeatures]float64
	OnLabel   int

	// Informational, filled by the trainer.
	TrainedRows int
	Inertia     float64
}

func (a *Artifact) Validate() error {
	if a.OnLabel < 0 || a.OnLabel >= NumClusters {
		return fmt.Errorf("%w: on_label %d", ErrInvalidArtifact, a.OnLabel)
	}
	for i, m := range a.Medians {
		if !finite(m) {
			return fmt.Errorf("%w: median %d is %v", ErrInvalidArtifact, i, m)
		}
	}
	for k, c := range a.Centroids {
		for i, v := range c {
			if !finite(v) {
				return fmt.Errorf("%w: centroid %d feature %d is %v", ErrInvalidArtifact, k, i, v)
			}
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Wire layout (protobuf encoding):
//
//	1: medians       packed double
//	2: centroid      repeated message { 1: packed double }
//	3: on_label      varint
//	4: trained_rows  varint
//	5: inertia       double
const (
	fieldMedians     protowire.Number = 1
	fieldCentroid    protowire.Number = 2
	fieldOnLabel     protowire.Number = 3
	fieldTrainedRows protowire.Number = 4
	fieldInertia     protowire.Number = 5

	fieldValues protowire.Number = 1
)

func appendPackedDoubles(b []byte, num protowire.Number, vals []float64) []byte {
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func consumePackedDoubles(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: packed doubles of length %d", ErrInvalidArtifact, len(b))
	}
	out := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float64frombits(v))
		b = b[n:]
	}
	return out, nil
}

func (a *Artifact) MarshalBinary() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	var b []byte
	b = appendPackedDoubles(b, fieldMedians, a.Medians[:])
	for _, c := range a.Centroids {
		inner := appendPackedDoubles(nil, fieldValues, c[:])
		b = protowire.AppendTag(b, fieldCentroid, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	b = protowire.AppendTag(b, fieldOnLabel, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.OnLabel))
	b = protowire.AppendTag(b, fieldTrainedRows, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.TrainedRows))
	b = protowire.AppendTag(b, fieldInertia, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(a.Inertia))
	return b, nil
}

func (a *Artifact) UnmarshalBinary(b []byte) error {
	var (
		out       Artifact
		medians   []float64
		centroids [][]float64
		haveLabel bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldMedians && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
			}
			vals, err := consumePackedDoubles(v)
			if err != nil {
				return err
			}
			medians = vals
			b = b[n:]
		case num == fieldCentroid && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
			}
			vals, err := decodeCentroid(v)
			if err != nil {
				return err
			}
			centroids = append(centroids, vals)
			b = b[n:]
		case num == fieldOnLabel && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
			}
			if v >= NumClusters {
				return fmt.Errorf("%w: on_label %d", ErrInvalidArtifact, v)
			}
			out.OnLabel = int(v)
			haveLabel = true
			b = b[n:]
		case num == fieldTrainedRows && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
			}
			out.TrainedRows = int(v)
			b = b[n:]
		case num == fieldInertia && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
			}
			out.Inertia = math.Float64frombits(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if len(medians) != entities.NumFeatures {
		return fmt.Errorf("%w: %d medians, want %d", ErrInvalidArtifact, len(medians), entities.NumFeatures)
	}
	if len(centroids) != NumClusters {
		return fmt.Errorf("%w: %d centroids, want %d", ErrInvalidArtifact, len(centroids), NumClusters)
	}
	if !haveLabel {
		return fmt.Errorf("%w: missing on_label", ErrInvalidArtifact)
	}
	copy(out.Medians[:], medians)
	for k, c := range centroids {
		if len(c) != entities.NumFeatures {
			return fmt.Errorf("%w: centroid %d has %d features", ErrInvalidArtifact, k, len(c))
		}
		copy(out.Centroids[k][:], c)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*a = out
	return nil
}

func decodeCentroid(b []byte) ([]float64, error) {
	var vals []float64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
		}
		b = b[n:]
		if num == fieldValues && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
			}
			parsed, err := consumePackedDoubles(v)
			if err != nil {
				return nil, err
			}
			vals = parsed
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return vals, nil
}

// LoadArtifact reads the artifact at path.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var a Artifact
	if err := a.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return &a, nil
}

// SaveArtifact replaces the artifact at path. The new blob is written to a
// temporary file in the same directory and renamed over the old one.
func SaveArtifact(path string, a *Artifact) error {
	raw, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace model %s: %w", path, err)
	}
	return nil
}

package experiment

import (
	"context"
	"fmt"

	"github.com/roach88/artdr/internal/params"
	"github.com/roach88/artdr/internal/store"
)

// ConfigView is the config half of a payload.
type ConfigView struct {
	ConfigID       int64         `json:"config_id"`
	Method         string        `json:"method"`
	SubsetStrategy string        `json:"subset_strategy"`
	SubsetSize     int           `json:"subset_size"`
	Params         params.Params `json:"params"`
	Runtime        float64       `json:"runtime"`
	CreatedAt      string        `json:"created_at"`
}

// PointView is one point of a payload. Z is present only for 3-D runs.
type PointView struct {
	Filename string   `json:"filename"`
	Artist   string   `json:"artist"`
	ConfigID int64    `json:"config_id"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Z        *float64 `json:"z,omitempty"`
}

// Payload is the joined config and points handed to the viewer.
type Payload struct {
	Config ConfigView  `json:"config"`
	Points []PointView `json:"points"`
}

// Reader is the read side of the store the assembler needs.
type Reader interface {
	GetConfig(ctx context.Context, id int64) (store.Config, error)
	PointsForConfig(ctx context.Context, configID int64) ([]store.Point, error)
}

// Assembler builds payloads. It never writes.
type Assembler struct {
	store Reader
}

func NewAssembler(r Reader) *Assembler {
	return &Assembler{store: r}
}

// Load returns the payload for configID. A missing config is a
// NotFoundError; a config with no points yields an empty points array.
func (a *Assembler) Load(ctx context.Context, configID int64) (*Payload, error) {
	c, err := a.store.GetConfig(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	pts, err := a.store.PointsForConfig(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}

	p := &Payload{
		Config: ConfigView{
			ConfigID:       c.ID,
			Method:         c.Method,
			SubsetStrategy: c.SubsetStrategy,
			SubsetSize:     c.SubsetSize,
			Params:         c.Params,
			Runtime:        c.Runtime.Seconds(),
			CreatedAt:      c.CreatedAt,
		},
		Points: make([]PointView, len(pts)),
	}
	for i, pt := range pts {
		p.Points[i] = PointView{
			Filename: pt.Filename,
			Artist:   pt.Artist,
			ConfigID: pt.ConfigID,
			X:        pt.X,
			Y:        pt.Y,
			Z:        pt.Z,
		}
	}
	return p, nil
}

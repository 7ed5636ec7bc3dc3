package assets

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/framesync/internal/backend/audio"
	"github.com/zeusync/framesync/internal/core/command"
	"github.com/zeusync/framesync/internal/core/observability/log"
	"github.com/zeusync/framesync/internal/core/resource"
)

var (
	ErrUnknownAsset = errors.New("unknown asset")
	ErrKindMismatch = errors.New("asset kind mismatch")
	ErrMalformed    = errors.New("malformed asset spec")
)

// Procedural assets larger than these are rejected as malformed.
const (
	MaxDimension    = 8192
	MaxToneDuration = 10 * time.Second
)

// Factory builds the payload for a registered asset.
type Factory func(ctx context.Context, req command.ResourceLoad) (any, error)

type entry struct {
	kind    resource.Kind
	factory Factory
}

// Manifest maps friendly asset names to specs, e.g. "hero: 16x16#ff8800".
type Manifest struct {
	Aliases map[string]string `yaml:"aliases"`
}

func LoadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode asset manifest: %w", err)
	}
	return &m, nil
}

// Catalog resolves load requests to payloads. Names are looked up in the
// registry first, then through aliases, then parsed as procedural specs:
//
//	texture        WxH or WxH#rrggbb, or raw RGBA8 Data sized WxH
//	render_target  WxH
//	sound          tone:<hz>:<ms>
//	font           <name> or <name>:<cw>x<ch>
//	shader         any name with Data
type Catalog struct {
	mu      sync.RWMutex
	rate    beep.SampleRate
	log     log.Log
	aliases map[string]string
	named   map[string]entry
}

func NewCatalog(rate beep.SampleRate, logger log.Log) *Catalog {
	if logger == nil {
		logger = log.Nop()
	}
	return &Catalog{
		rate:    rate,
		log:     logger.Named("assets"),
		aliases: make(map[string]string),
		named:   make(map[string]entry),
	}
}

// Register binds name to a factory producing payloads of kind.
func (c *Catalog) Register(name string, kind resource.Kind, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.named[name] = entry{kind: kind, factory: f}
}

func (c *Catalog) Alias(name, spec string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases[name] = spec
}

// Apply adds every alias of m.
func (c *Catalog) Apply(m *Manifest) {
	for name, spec := range m.Aliases {
		c.Alias(name, spec)
	}
}

// Load implements the engine's loader contract.
func (c *Catalog) Load(ctx context.Context, req command.ResourceLoad) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	e, registered := c.named[req.Path]
	spec, aliased := c.aliases[req.Path]
	c.mu.RUnlock()

	if registered {
		if e.kind != req.Kind {
			return nil, fmt.Errorf("%w: %s is %s, requested %s", ErrKindMismatch, req.Path, e.kind, req.Kind)
		}
		return e.factory(ctx, req)
	}
	if aliased {
		req.Path = spec
	}

	c.log.Debug("procedural asset", log.String("kind", req.Kind.String()), log.String("spec", req.Path))
	switch req.Kind {
	case resource.KindTexture:
		return c.texture(req)
	case resource.KindRenderTarget:
		w, h, _, err := parseSize(req.Path)
		if err != nil {
			return nil, err
		}
		return resource.Texture{Width: w, Height: h}, nil
	case resource.KindSound:
		return c.tone(req.Path)
	case resource.KindFont:
		return parseFont(req.Path)
	case resource.KindShader:
		if len(req.Data) == 0 {
			return nil, fmt.Errorf("%w: shader %s has no source", ErrUnknownAsset, req.Path)
		}
		return append([]byte(nil), req.Data...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, req.Path)
	}
}

func (c *Catalog) texture(req command.ResourceLoad) (any, error) {
	w, h, rest, err := parseSize(req.Path)
	if err != nil {
		return nil, err
	}
	if req.Data != nil {
		if len(req.Data) != w*h*4 {
			return nil, fmt.Errorf("%w: %s needs %d bytes of RGBA, got %d", ErrMalformed, req.Path, w*h*4, len(req.Data))
		}
		return resource.Texture{Width: w, Height: h, Pixels: append([]byte(nil), req.Data...)}, nil
	}

	fill := []byte{255, 255, 255, 255}
	if rest != "" {
		if !strings.HasPrefix(rest, "#") || len(rest) != 7 {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, req.Path)
		}
		rgb, err := hex.DecodeString(rest[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, req.Path, err)
		}
		copy(fill, rgb)
	}
	pixels := make([]byte, w*h*4)
	for i := 0; i < len(pixels); i += 4 {
		copy(pixels[i:], fill)
	}
	return resource.Texture{Width: w, Height: h, Pixels: pixels}, nil
}

func (c *Catalog) tone(spec string) (any, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 || parts[0] != "tone" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, spec)
	}
	hz, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, spec, err)
	}
	ms, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, spec, err)
	}
	if ms <= 0 || ms > int(MaxToneDuration/time.Millisecond) {
		return nil, fmt.Errorf("%w: %s: duration out of range", ErrMalformed, spec)
	}
	buf, err := audio.Tone(c.rate, hz, time.Duration(ms)*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, spec, err)
	}
	return buf, nil
}

// parseSize reads a leading WxH and returns whatever follows it.
func parseSize(spec string) (w, h int, rest string, err error) {
	ws, tail, ok := strings.Cut(spec, "x")
	if !ok {
		return 0, 0, "", fmt.Errorf("%w: %s", ErrUnknownAsset, spec)
	}
	end := 0
	for end < len(tail) && tail[end] >= '0' && tail[end] <= '9' {
		end++
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(tail[:end])
	if errW != nil || errH != nil {
		return 0, 0, "", fmt.Errorf("%w: %s", ErrUnknownAsset, spec)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, "", fmt.Errorf("%w: %s has an empty size", ErrMalformed, spec)
	}
	if w > MaxDimension || h > MaxDimension {
		return 0, 0, "", fmt.Errorf("%w: %s exceeds %dx%d", ErrMalformed, spec, MaxDimension, MaxDimension)
	}
	return w, h, tail[end:], nil
}

func parseFont(spec string) (any, error) {
	name, size, sized := strings.Cut(spec, ":")
	if name == "" {
		return nil, fmt.Errorf("%w: empty font name", ErrMalformed)
	}
	font := resource.Font{Name: strings.Clone(name), CellWidth: 1, CellHeight: 1}
	if sized {
		w, h, rest, err := parseSize(size)
		if err != nil || rest != "" {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, spec)
		}
		font.CellWidth, font.CellHeight = w, h
	}
	return font, nil
}

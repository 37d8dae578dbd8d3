package models

type Session struct {
	Id             string `json:"id"`
	Created        int64  `json:"created"`
	StrokeSeq      int64  `json:"-"`
	ClearedThrough int64  `json:"-"`
	LayerVersion   int64  `json:"-"`
	StrokeCount    int    `json:"strokeCount"`
}

type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

type ColorMode int

const (
	ColorSolid ColorMode = iota
	ColorRainbow
	colorModeCount
)

// Stroke is immutable once committed, except for the Deleted soft-delete
// flag used by undo/redo. Order is assigned by the store's per-session
// sequence at commit time; it is monotonic but not gap-free.
type Stroke struct {
	Id          string    `json:"id"`
	SessionId   string    `json:"sessionId"`
	LayerId     string    `json:"layerId"`
	AuthorId    string    `json:"authorId,omitempty"`
	AuthorColor string    `json:"authorColor,omitempty"`
	Points      []Point   `json:"points"`
	BrushColor  string    `json:"brushColor"`
	BrushSize   float64   `json:"brushSize"`
	Opacity     float64   `json:"opacity"`
	IsEraser    bool      `json:"isEraser"`
	ColorMode   ColorMode `json:"colorMode"`
	Order       int64     `json:"order"`
	Deleted     bool      `json:"deleted"`
}

type LayerKind int

const (
	LayerPaint LayerKind = iota
	LayerImage
	LayerAIImage
	layerKindCount
)

type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	Rotation float64 `json:"rotation"`
}

func IdentityTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// ImageInfo is present only on image and AI image layers. The asset
// itself is owned by the storage collaborator; the registry keeps an
// opaque URL plus declared pixel dimensions.
type ImageInfo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	AssetURL string `json:"assetUrl"`
}

// Layer is the tagged union over the three layer kinds. All kinds share
// one densely packed order namespace per session: after any registry
// mutation the order values are exactly {0..N-1}.
type Layer struct {
	Id        string     `json:"id"`
	SessionId string     `json:"sessionId"`
	Kind      LayerKind  `json:"kind"`
	Visible   bool       `json:"visible"`
	Opacity   float64    `json:"opacity"`
	Order     int        `json:"order"`
	Transform Transform  `json:"transform"`
	Image     *ImageInfo `json:"image,omitempty"`
	Created   int64      `json:"created"`
}

func (l Layer) IsPaint() bool {
	return l.Kind == LayerPaint
}

func ValidLayerKind(k LayerKind) bool {
	return k >= 0 && k < layerKindCount
}

func ValidColorMode(m ColorMode) bool {
	return m >= 0 && m < colorModeCount
}

// Presence is the ephemeral per-participant cursor record. It is only
// ever broadcast on the live channel, never stored, and is superseded
// on every update. Peers drop it by LastSeen staleness.
type Presence struct {
	ParticipantId string  `json:"participantId"`
	CursorX       float64 `json:"cursorX"`
	CursorY       float64 `json:"cursorY"`
	IsDrawing     bool    `json:"isDrawing"`
	CurrentTool   string  `json:"currentTool"`
	LastSeen      int64   `json:"lastSeen"`
}

// LiveStroke is the ephemeral in-progress stroke preview, keyed by
// author and overwritten on every throttled update.
type LiveStroke struct {
	ParticipantId string    `json:"participantId"`
	LayerId       string    `json:"layerId,omitempty"`
	Points        []Point   `json:"points"`
	BrushColor    string    `json:"brushColor"`
	BrushSize     float64   `json:"brushSize"`
	Opacity       float64   `json:"opacity"`
	IsEraser      bool      `json:"isEraser"`
	ColorMode     ColorMode `json:"colorMode"`
	Done          bool      `json:"done"`
}

type Participant struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Guest bool   `json:"guest"`
}

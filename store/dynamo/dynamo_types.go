package dynamo

import (
	"fmt"

	"github.com/wepaintai/wepaintai-sub000/models"
)

type dynamoSession struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	Id             string `dynamodbav:"Id"`
	Created        int64  `dynamodbav:"Created"`
	StrokeSeq      int64  `dynamodbav:"StrokeSeq"`
	ClearedThrough int64  `dynamodbav:"ClearedThrough"`
	LayerVersion   int64  `dynamodbav:"LayerVersion"`
	StrokeCount    int    `dynamodbav:"StrokeCount"`
}

// Map domain Session -> Dynamo
func sessionToDynamo(s models.Session) dynamoSession {
	return dynamoSession{
		PK:             "SESSION#" + s.Id,
		SK:             "META",
		Id:             s.Id,
		Created:        s.Created,
		StrokeSeq:      s.StrokeSeq,
		ClearedThrough: s.ClearedThrough,
		LayerVersion:   s.LayerVersion,
		StrokeCount:    s.StrokeCount,
	}
}

// Map Dynamo -> domain Session
func sessionFromDynamo(ds dynamoSession) models.Session {
	return models.Session{
		Id:             ds.Id,
		Created:        ds.Created,
		StrokeSeq:      ds.StrokeSeq,
		ClearedThrough: ds.ClearedThrough,
		LayerVersion:   ds.LayerVersion,
		StrokeCount:    ds.StrokeCount,
	}
}

type dynamoStroke struct {
	PK          string         `dynamodbav:"PK"`
	SK          string         `dynamodbav:"SK"`
	Id          string         `dynamodbav:"Id"`
	LayerId     string         `dynamodbav:"LayerId"`
	AuthorId    string         `dynamodbav:"AuthorId"`
	AuthorColor string         `dynamodbav:"AuthorColor"`
	Points      []models.Point `dynamodbav:"Points"`
	BrushColor  string         `dynamodbav:"BrushColor"`
	BrushSize   float64        `dynamodbav:"BrushSize"`
	Opacity     float64        `dynamodbav:"Opacity"`
	IsEraser    bool           `dynamodbav:"IsEraser"`
	ColorMode   int            `dynamodbav:"ColorMode"`
	Order       int64          `dynamodbav:"Order"`
	Deleted     bool           `dynamodbav:"Deleted"`
}

// padOrder renders an order value as a fixed-width sort key so numeric
// order and lexicographic SK order agree.
func padOrder(order int64) string {
	return fmt.Sprintf("%012d", order)
}

// Map domain Stroke -> Dynamo
func strokeToDynamo(s models.Stroke) dynamoStroke {
	return dynamoStroke{
		PK:          "STROKE#" + s.SessionId,
		SK:          padOrder(s.Order),
		Id:          s.Id,
		LayerId:     s.LayerId,
		AuthorId:    s.AuthorId,
		AuthorColor: s.AuthorColor,
		Points:      s.Points,
		BrushColor:  s.BrushColor,
		BrushSize:   s.BrushSize,
		Opacity:     s.Opacity,
		IsEraser:    s.IsEraser,
		ColorMode:   int(s.ColorMode),
		Order:       s.Order,
		Deleted:     s.Deleted,
	}
}

// Map Dynamo -> domain Stroke
func strokeFromDynamo(ds dynamoStroke) models.Stroke {
	return models.Stroke{
		Id:          ds.Id,
		SessionId:   ds.PK[7:],
		LayerId:     ds.LayerId,
		AuthorId:    ds.AuthorId,
		AuthorColor: ds.AuthorColor,
		Points:      ds.Points,
		BrushColor:  ds.BrushColor,
		BrushSize:   ds.BrushSize,
		Opacity:     ds.Opacity,
		IsEraser:    ds.IsEraser,
		ColorMode:   models.ColorMode(ds.ColorMode),
		Order:       ds.Order,
		Deleted:     ds.Deleted,
	}
}

type dynamoLayer struct {
	PK          string  `dynamodbav:"PK"`
	SK          string  `dynamodbav:"SK"`
	Kind        int     `dynamodbav:"Kind"`
	Visible     bool    `dynamodbav:"Visible"`
	Opacity     float64 `dynamodbav:"Opacity"`
	LayerOrder  int     `dynamodbav:"LayerOrder"`
	TX          float64 `dynamodbav:"TX"`
	TY          float64 `dynamodbav:"TY"`
	ScaleX      float64 `dynamodbav:"ScaleX"`
	ScaleY      float64 `dynamodbav:"ScaleY"`
	Rotation    float64 `dynamodbav:"Rotation"`
	ImageWidth  int     `dynamodbav:"ImageWidth"`
	ImageHeight int     `dynamodbav:"ImageHeight"`
	AssetURL    string  `dynamodbav:"AssetURL"`
	Created     int64   `dynamodbav:"Created"`
}

// Map domain Layer -> Dynamo
func layerToDynamo(l models.Layer) dynamoLayer {
	dl := dynamoLayer{
		PK:         "LAYER#" + l.SessionId,
		SK:         l.Id,
		Kind:       int(l.Kind),
		Visible:    l.Visible,
		Opacity:    l.Opacity,
		LayerOrder: l.Order,
		TX:         l.Transform.X,
		TY:         l.Transform.Y,
		ScaleX:     l.Transform.ScaleX,
		ScaleY:     l.Transform.ScaleY,
		Rotation:   l.Transform.Rotation,
		Created:    l.Created,
	}
	if l.Image != nil {
		dl.ImageWidth = l.Image.Width
		dl.ImageHeight = l.Image.Height
		dl.AssetURL = l.Image.AssetURL
	}
	return dl
}

// Map Dynamo -> domain Layer
func layerFromDynamo(dl dynamoLayer) models.Layer {
	l := models.Layer{
		Id:        dl.SK,
		SessionId: dl.PK[6:],
		Kind:      models.LayerKind(dl.Kind),
		Visible:   dl.Visible,
		Opacity:   dl.Opacity,
		Order:     dl.LayerOrder,
		Transform: models.Transform{
			X:        dl.TX,
			Y:        dl.TY,
			ScaleX:   dl.ScaleX,
			ScaleY:   dl.ScaleY,
			Rotation: dl.Rotation,
		},
		Created: dl.Created,
	}
	if l.Kind != models.LayerPaint {
		l.Image = &models.ImageInfo{
			Width:    dl.ImageWidth,
			Height:   dl.ImageHeight,
			AssetURL: dl.AssetURL,
		}
	}
	return l
}

package pebbledb

import "github.com/wepaintai/wepaintai-sub000/models"

// pebbleSession is the stored form of a session's meta record. The
// domain struct hides StrokeSeq, ClearedThrough and LayerVersion from
// API responses, so the store keeps its own serializable mirror.
type pebbleSession struct {
	Id             string `json:"id"`
	Created        int64  `json:"created"`
	StrokeSeq      int64  `json:"strokeSeq"`
	ClearedThrough int64  `json:"clearedThrough"`
	LayerVersion   int64  `json:"layerVersion"`
	StrokeCount    int    `json:"strokeCount"`
}

// Map domain Session -> Pebble
func sessionToPebble(s models.Session) pebbleSession {
	return pebbleSession{
		Id:             s.Id,
		Created:        s.Created,
		StrokeSeq:      s.StrokeSeq,
		ClearedThrough: s.ClearedThrough,
		LayerVersion:   s.LayerVersion,
		StrokeCount:    s.StrokeCount,
	}
}

// Map Pebble -> domain Session
func sessionFromPebble(ps pebbleSession) models.Session {
	return models.Session{
		Id:             ps.Id,
		Created:        ps.Created,
		StrokeSeq:      ps.StrokeSeq,
		ClearedThrough: ps.ClearedThrough,
		LayerVersion:   ps.LayerVersion,
		StrokeCount:    ps.StrokeCount,
	}
}

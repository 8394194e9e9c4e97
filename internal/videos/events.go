package videos

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
)

// EventKind tags the one lifecycle transition a webhook delivery drives.
type EventKind string

const (
	EventUnknown      EventKind = ""
	EventAssetCreated EventKind = "asset.created"
	EventAssetReady   EventKind = "asset.ready"
	EventAssetErrored EventKind = "asset.errored"
	EventAssetDeleted EventKind = "asset.deleted"
)

// Event is the parsed form of a provider notification. Only the fields the
// corresponding transition needs survive parsing; everything else in the
// payload is dropped at this boundary.
type Event struct {
	Kind     EventKind
	RawType  string
	AssetID  string
	UploadID string

	// Ready events may carry the signed handle and asset metadata inline,
	// which saves a provider round trip.
	PlaybackID string
	Duration   *float64
	Title      string
}

type rawEvent struct {
	Type string       `json:"type"`
	Data rawEventData `json:"data"`
}

type rawEventData struct {
	ID          string   `json:"id"`
	UploadID    string   `json:"upload_id"`
	AssetID     string   `json:"asset_id"`
	Duration    *float64 `json:"duration"`
	Passthrough string   `json:"passthrough"`
	PlaybackIDs []struct {
		ID     string `json:"id"`
		Policy string `json:"policy"`
	} `json:"playback_ids"`
}

type passthroughMeta struct {
	Filename string `json:"filename"`
}

// ParseEvent maps a raw webhook body onto a tagged Event. Event types we do
// not handle parse successfully with Kind == EventUnknown so the caller can
// acknowledge them without mutation.
func ParseEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	if strings.TrimSpace(raw.Type) == "" {
		return Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing type")
	}

	evt := Event{RawType: raw.Type}

	// Historical deliveries arrive both with and without the "video." prefix.
	switch strings.TrimPrefix(raw.Type, "video.") {
	case "upload.asset_created":
		// The payload object is the upload slot: its id is the upload id and
		// asset_id links to the freshly created asset. Older deliveries carried
		// the upload id under upload_id instead of id.
		evt.Kind = EventAssetCreated
		evt.UploadID = raw.Data.ID
		if evt.UploadID == "" {
			evt.UploadID = raw.Data.UploadID
		}
		evt.AssetID = raw.Data.AssetID
	case "asset.created":
		evt.Kind = EventAssetCreated
		evt.AssetID = raw.Data.ID
		evt.UploadID = raw.Data.UploadID
	case "asset.ready":
		evt.Kind = EventAssetReady
		evt.AssetID = raw.Data.ID
		evt.UploadID = raw.Data.UploadID
		evt.Duration = raw.Data.Duration
		evt.PlaybackID = signedPlaybackID(raw.Data)
		evt.Title = titleFromPassthrough(raw.Data.Passthrough)
	case "asset.errored":
		evt.Kind = EventAssetErrored
		evt.AssetID = raw.Data.ID
	case "asset.deleted":
		evt.Kind = EventAssetDeleted
		evt.AssetID = raw.Data.ID
	default:
		evt.Kind = EventUnknown
		return evt, nil
	}

	if evt.AssetID == "" && evt.UploadID == "" {
		return Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing asset and upload ids")
	}
	return evt, nil
}

func signedPlaybackID(data rawEventData) string {
	for _, pb := range data.PlaybackIDs {
		if pb.Policy == "signed" {
			return pb.ID
		}
	}
	return ""
}

func titleFromPassthrough(passthrough string) string {
	if passthrough == "" {
		return ""
	}
	var meta passthroughMeta
	if err := json.Unmarshal([]byte(passthrough), &meta); err != nil {
		return ""
	}
	return meta.Filename
}

package storage

import (
	"fmt"
	"strings"
	"time"
)

// Cache-control values for the two mutability classes.
const (
	CacheSession = "no-store"
	CacheMutable = "no-cache, max-age=0"
)

// Content types for the object kinds this service writes.
const (
	ContentTypeRecord = "application/x-go-sgf"
	ContentTypeJSON   = "application/json"
	ContentTypePNG    = "image/png"
	ContentTypeGIF    = "image/gif"
	ContentTypeText   = "text/plain; charset=utf-8"
)

// RecordExt is the extension uploaded game records are stored under.
const RecordExt = ".rec"

// Key schema. Everything about one chat lives under target/{chat}/.

func SessionPath(chat string) string {
	return fmt.Sprintf("target/%s/state/session.json", chat)
}

func BoardPrefix(chat, gameID string) string {
	return fmt.Sprintf("target/%s/boards/%s/", chat, gameID)
}

func RecordPath(chat, gameID string) string {
	return BoardPrefix(chat, gameID) + "game" + RecordExt
}

// BoardImagePath names a board snapshot; name carries no extension.
func BoardImagePath(chat, gameID, name string) string {
	return fmt.Sprintf("%s%s.png", BoardPrefix(chat, gameID), name)
}

func ReviewsPrefix(chat string) string {
	return fmt.Sprintf("target/%s/reviews/", chat)
}

// ReviewUploadPath names an uploaded record: the original file name plus
// the upload second, so the newest upload sorts last and carries a numeric
// task id suffix.
func ReviewUploadPath(chat, originalName string, ts time.Time) string {
	return fmt.Sprintf("%s%s_%d%s", ReviewsPrefix(chat), originalName, ts.Unix(), RecordExt)
}

func ReviewJSONPath(chat, taskID string) string {
	return fmt.Sprintf("%s%s.json", ReviewsPrefix(chat), taskID)
}

// ReviewArtifactPath names task-scoped media, e.g. {task}_overview.png or
// {task}_move_42.gif.
func ReviewArtifactPath(chat, taskID, name string) string {
	return fmt.Sprintf("%s%s_%s", ReviewsPrefix(chat), taskID, name)
}

func AuthPath(chat string) string {
	return fmt.Sprintf("auth/target/%s/auth.txt", chat)
}

// StripGSPrefix reduces a gs://bucket/path URI to the bucket-relative
// path. Plain paths pass through unchanged.
func StripGSPrefix(p string) string {
	if !strings.HasPrefix(p, "gs://") {
		return p
	}
	rest := strings.TrimPrefix(p, "gs://")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i+1:]
	}
	return ""
}

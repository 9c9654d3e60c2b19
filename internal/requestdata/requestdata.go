package requestdata

import (
	"context"

	"github.com/google/uuid"
)

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData carries the authenticated identity for the request. SessionID
// distinguishes concurrent logins of the same user (each browser tab or
// device holds its own live event stream).
type RequestData struct {
	TokenString string
	UserID      uuid.UUID
	SessionID   uuid.UUID
}

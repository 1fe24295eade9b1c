package mapengine

import (
	"context"
	"errors"
	"net"
	"time"

	"pricemap/backend/model"
)

// Source is what the host provides to feed the map.
type Source interface {
	FetchPrices(ctx context.Context, f model.Filters) ([]model.PriceObservation, error)
	FetchStores(ctx context.Context) ([]model.Place, error)
	FetchSuppliers(ctx context.Context) ([]model.Place, error)
	FetchLocalities(ctx context.Context) ([]model.Locality, error)
	FetchEntitySummary(ctx context.Context, ref model.EntityRef) (*model.EntitySummary, error)
}

type Collection string

const (
	Prices     Collection = "prices"
	Stores     Collection = "stores"
	Suppliers  Collection = "suppliers"
	Localities Collection = "localities"
)

var Collections = []Collection{Prices, Stores, Suppliers, Localities}

// filtered lists the collections reloaded when filters change.
var filtered = []Collection{Prices, Stores, Suppliers}

func ParseCollection(s string) (Collection, error) {
	for _, c := range Collections {
		if string(c) == s {
			return c, nil
		}
	}
	return "", ErrUnknownCollection
}

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// ErrorKind tells the user what went wrong with a collection load.
type ErrorKind string

const (
	ErrorNetwork     ErrorKind = "network"
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorOther       ErrorKind = "other"
)

var (
	// ErrRateLimited is wrapped by sources when the backend throttles requests.
	ErrRateLimited       = errors.New("rate limited")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotFailed         = errors.New("collection has not failed")
	ErrUnknownPlace      = errors.New("unknown place")
	ErrClosed            = errors.New("map engine closed")
)

func ClassifyError(err error) ErrorKind {
	if errors.Is(err, ErrRateLimited) {
		return ErrorRateLimited
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorNetwork
	}
	return ErrorOther
}

func (k ErrorKind) Message() string {
	switch k {
	case ErrorNetwork:
		return "Connection error. Check that the server is running."
	case ErrorRateLimited:
		return "Too many requests. Please wait a moment."
	default:
		return "Error while loading data."
	}
}

// CollectionState is the load state of one collection as shown to the user.
type CollectionState struct {
	Status    Status    `json:"status"`
	Count     int       `json:"count"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	// Retryable is set on failed collections; Engine.Retry reloads them.
	Retryable bool      `json:"retryable"`
	UpdatedAt time.Time `json:"updated_at"`
}

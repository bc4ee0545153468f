package service

import (
	"context"
	"errors"

	ms "meater_sync"
	"meater_sync/internal/logger"
	"meater_sync/internal/meater"
)

// Session is the part of session.Manager the fetcher needs.
type Session interface {
	EnsureSession(ctx context.Context) (string, error)
	Invalidate(token string)
}

// CloudClient is the vendor REST API.
type CloudClient interface {
	ListDevices(ctx context.Context, token string) ([]ms.RemoteDevice, error)
	FetchDevice(ctx context.Context, token, id string) (ms.RemoteDevice, error)
}

// Fetcher reads probes from the cloud on behalf of the discovery loop and the scheduler.
type Fetcher struct {
	client  CloudClient
	session Session
	log     *logger.Logger
}

func NewFetcher(client CloudClient, session Session, log *logger.Logger) *Fetcher {
	return &Fetcher{client: client, session: session, log: log}
}

func (f *Fetcher) ListDevices(ctx context.Context) ([]ms.RemoteDevice, error) {
	return withSession(ctx, f, "list devices", f.log, func(ctx context.Context, token string) ([]ms.RemoteDevice, error) {
		return f.client.ListDevices(ctx, token)
	})
}

func (f *Fetcher) FetchDevice(ctx context.Context, id string) (ms.RemoteDevice, error) {
	log := f.log.ForDevice(id, logger.ModeStandard)
	return withSession(ctx, f, "fetch device", log, func(ctx context.Context, token string) (ms.RemoteDevice, error) {
		return f.client.FetchDevice(ctx, token, id)
	})
}

// withSession runs call with a valid token. A 401 in either status code
// invalidates the token; the call is retried once with a fresh session and a
// second 401 ends the attempt with a terminal unauthorized error.
func withSession[T any](ctx context.Context, f *Fetcher, op string, log *logger.Logger, call func(context.Context, string) (T, error)) (T, error) {
	var zero T

	token, err := f.session.EnsureSession(ctx)
	if err != nil {
		return zero, err
	}
	v, err := call(ctx, token)
	if err == nil {
		return v, nil
	}
	reportStatus(log, op, err)
	if !isUnauthorized(err) {
		return zero, err
	}
	f.session.Invalidate(token)

	token, err = f.session.EnsureSession(ctx)
	if err != nil {
		return zero, err
	}
	v, err = call(ctx, token)
	if err == nil {
		return v, nil
	}
	reportStatus(log, op, err)
	if !isUnauthorized(err) {
		return zero, err
	}
	f.session.Invalidate(token)
	return zero, terminalUnauthorized(op, err)
}

func isUnauthorized(err error) bool {
	var e *meater.Error
	return errors.As(err, &e) && e.Has(meater.Unauthorized)
}

func terminalUnauthorized(op string, err error) error {
	var e *meater.Error
	errors.As(err, &e)
	return &meater.Error{
		Op:        op,
		Class:     meater.ClassAuth,
		Kind:      meater.KindUnauthorized,
		Transport: e.Transport,
		Payload:   e.Payload,
		Err:       err,
	}
}

// reportStatus logs the transport and payload status of a failed response,
// each classified on its own.
func reportStatus(log *logger.Logger, op string, err error) {
	var e *meater.Error
	if !errors.As(err, &e) || (e.Transport == 0 && e.Payload == 0) {
		log.Warnw("cloud_request_failed", "op", op, "err", err)
		return
	}
	for _, st := range []struct {
		source string
		code   int
	}{{"http", e.Transport}, {"api", e.Payload}} {
		if st.code == 0 {
			continue
		}
		cat := meater.Classify(st.code)
		switch cat {
		case meater.OK:
		case meater.Unknown:
			log.Errorw("cloud_status", "op", op, "source", st.source, "code", st.code, "category", cat.String(),
				"hint", "unexpected status, check the endpoint and rerun with --debug")
		case meater.Unauthorized, meater.ServerError:
			log.Errorw("cloud_status", "op", op, "source", st.source, "code", st.code, "category", cat.String())
		default:
			log.Warnw("cloud_status", "op", op, "source", st.source, "code", st.code, "category", cat.String())
		}
	}
}

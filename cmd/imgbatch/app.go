package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aliskhannn/imgbatch/internal/batch"
	"github.com/aliskhannn/imgbatch/internal/client"
	"github.com/aliskhannn/imgbatch/internal/config"
	"github.com/aliskhannn/imgbatch/internal/export"
	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/processor"
	"github.com/aliskhannn/imgbatch/internal/quota"
	"github.com/aliskhannn/imgbatch/internal/session"
	"github.com/aliskhannn/imgbatch/internal/storage/local"
	"github.com/aliskhannn/imgbatch/internal/uploader"
	"github.com/aliskhannn/imgbatch/internal/usage"
)

// app is one wired client session.
type app struct {
	cfg      *config.Client
	session  *session.Session
	reporter *usage.Reporter
}

// close waits for in-flight usage reports.
func (a *app) close() {
	a.reporter.Wait()
}

func newApp(cfg *config.Client, persist bool) (*app, error) {
	loc, err := cfg.Quota.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone: %w", err)
	}

	workspace, err := local.NewStorage(cfg.State.Workspace)
	if err != nil {
		return nil, err
	}

	counter := quota.NewLocalCounter(cfg.State.Path, cfg.Quota.AnonymousDailyLimit)

	actor, err := resolveActor(cfg.Server.Token, counter)
	if err != nil {
		return nil, err
	}
	if actor.Registered() && cfg.Server.URL == "" {
		return nil, errors.New("a registered account needs server.url")
	}

	opts, err := defaultOptions(cfg.Processor)
	if err != nil {
		return nil, err
	}

	engine := processor.New(workspace)
	deps := session.Deps{
		Engine:   engine,
		Exporter: export.New(workspace, cfg.Export.BatchDownloadLimit),
		Now:      time.Now,
	}

	if cfg.Server.URL != "" {
		c := client.New(cfg.Server.URL, actor.Token, cfg.Server.Timeout)
		deps.Gate = quota.NewGate(counter, c, loc, time.Now)
		deps.Uploader = uploader.New(c, workspace)
		deps.Reporter = usage.New(c, cfg.Server.Timeout)
	} else {
		deps.Gate = quota.NewGate(counter, nil, loc, time.Now)
		deps.Reporter = usage.New(nil, 0)
	}

	s := session.New(actor, persist, batch.New(opts, cfg.History.Limit), deps)

	return &app{cfg: cfg, session: s, reporter: deps.Reporter}, nil
}

// resolveActor maps a bearer token to a registered actor, or falls back to
// the pseudo-anonymous id kept in the local state file. The token is verified
// by the backend; here only its subject is read.
func resolveActor(tokenString string, counter *quota.LocalCounter) (model.Actor, error) {
	if tokenString == "" {
		id, err := counter.AnonymousID()
		if err != nil {
			return model.Actor{}, err
		}

		return model.Actor{Kind: model.ActorAnonymous, ID: id}, nil
	}

	tok, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return model.Actor{}, fmt.Errorf("malformed token: %w", err)
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return model.Actor{}, errors.New("token has no subject")
	}

	return model.Actor{Kind: model.ActorRegistered, ID: sub, Token: tokenString}, nil
}

func defaultOptions(p config.Processing) (model.Options, error) {
	opts := model.DefaultOptions()

	if p.Width > 0 {
		opts.TargetWidth = p.Width
	}
	if p.Height > 0 {
		opts.TargetHeight = p.Height
	}
	opts.KeepAspectRatio = p.KeepAspectRatio
	if p.Format != "" {
		f, err := model.ParseFormat(p.Format)
		if err != nil {
			return model.Options{}, err
		}
		opts.Format = f
	}
	if p.Quality > 0 {
		opts.Quality = p.Quality
	}
	if p.Compression > 0 {
		opts.Compression = p.Compression
	}

	if err := opts.Validate(); err != nil {
		return model.Options{}, err
	}

	return opts, nil
}

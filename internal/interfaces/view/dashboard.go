package view

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
)

// Dashboard главная страница: индикатор доверия по каждому фиду и агрегат
func Dashboard(state *dto.FreshnessStateDTO, now time.Time) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}

		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw(`<title>Mainnet Dashboard</title>`)
		p.raw(`<link rel="stylesheet" href="/static/css/style.css"></head><body>`)

		p.raw(`<header class="header"><h1>Mainnet Dashboard</h1>`)
		health := state.DerivedHealth
		p.raw(`<span id="derived-health" class="badge badge-` + templ.EscapeString(sourceOf(health)) + `">`)
		p.text(TrustLabel(health, now))
		p.raw(`</span></header>`)

		if state.ShouldForceDemoMode {
			p.raw(`<div id="demo-banner" class="banner">`)
			if state.ForcedByConfig {
				p.text("Demo data is forced by configuration.")
			} else {
				p.text(fmt.Sprintf("Upstream unavailable for %d poll cycles, showing demo data.", state.ConsecutiveErrorCount))
			}
			p.raw(`</div>`)
		}

		p.raw(`<section class="summary"><dl>`)
		p.raw(`<dt>Last live update</dt><dd id="last-live">`)
		p.text(LastLiveLabel(state, now))
		p.raw(`</dd><dt>Failed cycles</dt><dd id="error-cycles">`)
		p.text(strconv.Itoa(state.ConsecutiveErrorCount))
		p.raw(`</dd></dl></section>`)

		p.raw(`<section class="feeds">`)
		for _, feed := range state.Feeds {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := templ.EscapeString(feed.Feed)
			p.raw(`<article class="feed" data-feed="` + key + `">`)
			p.raw(`<h2>` + key + `</h2>`)
			p.raw(`<span class="badge badge-` + templ.EscapeString(feed.Source) + `" data-role="trust">`)
			p.text(TrustLabel(feed, now))
			p.raw(`</span>`)
			p.raw(`<p class="meta" data-role="size">`)
			p.text(PayloadSize(feed))
			p.raw(`</p>`)
			p.raw(`<pre data-role="payload">`)
			p.text(string(feed.Payload))
			p.raw(`</pre></article>`)
		}
		p.raw(`</section>`)

		p.raw(`<script src="/static/js/freshness.js" defer></script></body></html>`)
		return p.err
	})
}

func sourceOf(snap *dto.SnapshotDTO) string {
	if snap == nil {
		return "demo"
	}
	return snap.Source
}

// printer запоминает первую ошибку записи
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

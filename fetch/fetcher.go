// Package fetch drains a paged record source and hands each page to an
// apply callback in strict offset order.
//
// Pages within a wave may be fetched concurrently, but apply always
// runs sequentially in ascending offset order and a wave is never
// started until the previous wave has been fully applied. A crash
// therefore leaves a gap-free prefix behind, and re-running with
// StartOffset set to the applied count resumes without holes.
package fetch

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/theplant/appkit/logtracing"
	"golang.org/x/sync/errgroup"

	"github.com/theplant/regsync"
)

const (
	defaultPageSize    = 500
	defaultParallelism = 1
)

// Config controls page size, wave width, and the resume offset.
type Config struct {
	// PageSize is the number of records requested per page.
	PageSize int

	// Parallelism is the number of pages fetched concurrently within a
	// wave. 1 means fully sequential.
	Parallelism int

	// StartOffset skips records already applied by an earlier run.
	StartOffset int

	// Progress, when set, is called after each applied page with the
	// absolute record offset reached and the source total.
	Progress func(done, total int)
}

func (c *Config) setDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.Parallelism <= 0 {
		c.Parallelism = defaultParallelism
	}
	if c.StartOffset < 0 {
		c.StartOffset = 0
	}
}

// ApplyFunc consumes one fetched page. It is never called concurrently
// and never out of offset order.
type ApplyFunc func(ctx context.Context, page regsync.Page) error

type Fetcher struct {
	source regsync.PagedSource
	cfg    Config
}

func New(source regsync.PagedSource, cfg Config) *Fetcher {
	cfg.setDefaults()
	return &Fetcher{source: source, cfg: cfg}
}

// Run drains the source from StartOffset to the end, returning the
// number of records applied by this run.
func (f *Fetcher) Run(ctx context.Context, apply ApplyFunc) (applied int, xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "fetch.Run")
	defer func() { logtracing.EndSpan(ctx, xerr) }()

	total, err := f.source.Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count source records")
	}

	logtracing.AppendSpanKVs(ctx,
		"total", total,
		"start_offset", f.cfg.StartOffset,
		"page_size", f.cfg.PageSize,
		"parallelism", f.cfg.Parallelism,
	)

	offset := f.cfg.StartOffset
	for offset < total {
		pages, done, err := f.fetchWave(ctx, offset, total)
		if err != nil {
			return applied, err
		}
		for _, page := range pages {
			if err := apply(ctx, page); err != nil {
				return applied, errors.Wrapf(err, "failed to apply page at offset %d", page.Offset)
			}
			applied += len(page.Records)
			offset = page.Offset + len(page.Records)
			if f.cfg.Progress != nil {
				f.cfg.Progress(offset, total)
			}
		}
		if done {
			break
		}
	}

	logtracing.AppendSpanKVs(ctx, "applied", applied)
	return applied, nil
}

// fetchWave fetches up to Parallelism consecutive pages concurrently
// and returns them sorted by offset. done reports that the source is
// exhausted, either by reaching total or by a short page.
func (f *Fetcher) fetchWave(ctx context.Context, offset, total int) (pages []regsync.Page, done bool, err error) {
	var offsets []int
	for o := offset; o < total && len(offsets) < f.cfg.Parallelism; o += f.cfg.PageSize {
		offsets = append(offsets, o)
	}

	results := make([]regsync.Page, len(offsets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Parallelism)
	for i, o := range offsets {
		g.Go(func() error {
			records, err := f.source.Fetch(gctx, o, f.cfg.PageSize)
			if err != nil {
				return errors.Wrapf(err, "failed to fetch page at offset %d", o)
			}
			results[i] = regsync.Page{Offset: o, Records: records}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Offset < results[j].Offset })

	// A short or empty page means the source ended earlier than Count
	// said. Drop everything after it so apply never sees a gap.
	for i, page := range results {
		if len(page.Records) < f.cfg.PageSize {
			return results[:i+1], true, nil
		}
	}

	last := results[len(results)-1]
	return results, last.Offset+len(last.Records) >= total, nil
}

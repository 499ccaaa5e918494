// Package publish pushes a generated DocFX web site into a Confluence space.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"github.com/tintoy/confluence-docfx-import/pkg/confluence"
	"github.com/tintoy/confluence-docfx-import/pkg/docfx"
	"github.com/tintoy/confluence-docfx-import/pkg/mapping"
	"github.com/tintoy/confluence-docfx-import/pkg/metrics"
)

// DefaultPlaceholderContent is the body of newly created pages until their
// content is published
const DefaultPlaceholderContent = "<h1>Placeholder</h1>\nThis page is a placeholder."

// Error stages reported in metrics
const (
	StageLoad      = "load"
	StageMappings  = "mappings"
	StageCreate    = "create"
	StageTransform = "transform"
	StageUpdate    = "update"
)

// Confluence is the part of the Confluence API used for publishing
type Confluence interface {
	SpaceMappings(ctx context.Context, spaceKey string) ([]mapping.Mapping, error)
	CreatePage(ctx context.Context, p confluence.NewPage) (string, error)
	SetDocFXProperty(ctx context.Context, id string, props confluence.DocFXProperties) error
	UpdatePage(ctx context.Context, id, title, content string) error
	ReplaceDocFXProperty(ctx context.Context, id string, props confluence.DocFXProperties) error
}

// Options controls a publish run
type Options struct {
	ManifestPath       string
	SpaceKey           string
	Concurrency        int
	PlaceholderContent string
	LanguageMap        map[string]string
	DryRun             bool

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Result counts what a run did, or would do for a dry run
type Result struct {
	Created int
	Updated int
	Skipped int
}

// Publisher publishes one DocFX site to one Confluence space
type Publisher struct {
	client  Confluence
	store   mapping.Store
	opts    Options
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

type pageJob struct {
	ref    docfx.XRef
	pageID string
}

// New creates a publisher. Existing mappings are loaded into store at the
// start of every run.
func New(client Confluence, store mapping.Store, opts Options) (*Publisher, error) {
	if opts.ManifestPath == "" {
		return nil, fmt.Errorf("manifest path is required")
	}
	if opts.SpaceKey == "" {
		return nil, fmt.Errorf("confluence space is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PlaceholderContent == "" {
		opts.PlaceholderContent = DefaultPlaceholderContent
	}
	if opts.LanguageMap == nil {
		opts.LanguageMap = docfx.DefaultLanguageMap
	}

	p := &Publisher{
		client:  client,
		store:   store,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if p.logger == nil {
		p.logger = logrus.StandardLogger()
	}
	if p.metrics == nil {
		p.metrics = metrics.Discard()
	}
	return p, nil
}

// Run publishes the site. Pages for topics unknown to Confluence are
// created as placeholders first so that every link can be resolved, then
// every page is updated with its transformed content.
func (p *Publisher) Run(ctx context.Context) (*Result, error) {
	site, err := docfx.LoadSite(p.opts.ManifestPath)
	if err != nil {
		p.metrics.PublishErrors.WithLabelValues(StageLoad).Inc()
		return nil, err
	}

	existing, err := p.client.SpaceMappings(ctx, p.opts.SpaceKey)
	if err != nil {
		p.metrics.PublishErrors.WithLabelValues(StageMappings).Inc()
		return nil, fmt.Errorf("failed to load mappings for space %s: %w", p.opts.SpaceKey, err)
	}
	// a dry run must not overwrite the shared mapping cache
	store := p.store
	if p.opts.DryRun {
		store = mapping.NewMemoryStore()
	}
	if err := store.Replace(ctx, existing); err != nil {
		p.metrics.PublishErrors.WithLabelValues(StageMappings).Inc()
		return nil, fmt.Errorf("failed to store mappings: %w", err)
	}
	p.metrics.MappingsLoaded.Set(float64(len(existing)))

	p.logger.WithFields(logrus.Fields{
		"space":    p.opts.SpaceKey,
		"mappings": len(existing),
		"xrefs":    len(site.XRefs),
	}).Info("Loaded DocFX site and Confluence mappings")

	var jobs, missing []pageJob
	for _, ref := range site.XRefs {
		m, err := store.ByUID(ctx, ref.UID)
		switch {
		case err == nil:
			jobs = append(jobs, pageJob{ref: ref, pageID: m.ConfluenceID})
		case errors.Is(err, mapping.ErrNotFound):
			p.logger.WithField("uid", ref.UID).Info("No mapping in Confluence for DocFX UID, a new page will be created")
			missing = append(missing, pageJob{ref: ref})
		default:
			return nil, fmt.Errorf("failed to look up mapping for %s: %w", ref.UID, err)
		}
	}

	result := &Result{}
	if len(missing) > 0 {
		p.logger.WithField("count", len(missing)).Info("Creating placeholder pages")
	}
	for _, job := range missing {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if p.opts.DryRun {
			p.logger.WithFields(logrus.Fields{
				"uid":   job.ref.UID,
				"href":  job.ref.Href,
				"title": job.ref.Title(),
			}).Info("Would create page")
			result.Created++
			continue
		}

		id, err := p.createPlaceholder(ctx, job.ref)
		if err != nil {
			p.metrics.PublishErrors.WithLabelValues(StageCreate).Inc()
			return result, err
		}
		result.Created++
		jobs = append(jobs, pageJob{ref: job.ref, pageID: id})
	}

	links, err := p.links(ctx, store)
	if err != nil {
		return result, err
	}

	updated, skipped, err := p.updateAll(ctx, site, links, jobs)
	result.Updated = updated
	result.Skipped = skipped
	if err != nil {
		return result, err
	}

	p.logger.WithFields(logrus.Fields{
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"dryRun":  p.opts.DryRun,
	}).Info("Publish complete")
	return result, nil
}

func (p *Publisher) createPlaceholder(ctx context.Context, ref docfx.XRef) (string, error) {
	id, err := p.client.CreatePage(ctx, confluence.NewPage{
		SpaceKey: p.opts.SpaceKey,
		Title:    ref.Title(),
		Content:  p.opts.PlaceholderContent,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create page for %s: %w", ref.UID, err)
	}

	props := confluence.DocFXProperties{UID: ref.UID, Href: ref.Href}
	if err := p.client.SetDocFXProperty(ctx, id, props); err != nil {
		return "", fmt.Errorf("failed to attach docfx property to page %s: %w", id, err)
	}

	m := mapping.Mapping{ConfluenceID: id, DocFXUID: ref.UID, DocFXHref: ref.Href}
	if err := p.store.Put(ctx, m); err != nil {
		return "", fmt.Errorf("failed to store mapping for %s: %w", ref.UID, err)
	}

	p.metrics.PagesCreated.Inc()
	p.logger.WithFields(logrus.Fields{
		"uid":  ref.UID,
		"href": ref.Href,
		"page": id,
	}).Info("Created placeholder page")
	return id, nil
}

// links maps each site-relative page path to a Confluence page id
func (p *Publisher) links(ctx context.Context, store mapping.Store) (map[string]string, error) {
	mappings, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return mapping.HrefIndex(mappings), nil
}

func (p *Publisher) updateAll(ctx context.Context, site *docfx.Site, links map[string]string, jobs []pageJob) (int, int, error) {
	transformer := &docfx.Transformer{
		Links:       links,
		LanguageMap: p.opts.LanguageMap,
		Logger:      p.logger,
	}

	if len(jobs) == 0 {
		return 0, 0, nil
	}

	var updated, skipped int64
	t, ctx := tomb.WithContext(ctx)
	queue := make(chan pageJob)

	// Workers start first: none of them can return before the queue is
	// closed, so the tomb stays alive while the feeder is added.
	for i := 0; i < p.opts.Concurrency; i++ {
		t.Go(func() error {
			for {
				select {
				case job, ok := <-queue:
					if !ok {
						return nil
					}
					done, err := p.update(ctx, site, transformer, job)
					if err != nil {
						return err
					}
					if done {
						atomic.AddInt64(&updated, 1)
					} else {
						atomic.AddInt64(&skipped, 1)
					}
				case <-t.Dying():
					return nil
				}
			}
		})
	}

	t.Go(func() error {
		defer close(queue)
		for _, job := range jobs {
			select {
			case queue <- job:
			case <-t.Dying():
				return nil
			}
		}
		return nil
	})

	err := t.Wait()
	return int(atomic.LoadInt64(&updated)), int(atomic.LoadInt64(&skipped)), err
}

// update publishes one page. It reports false when the page file does not
// exist in the site.
func (p *Publisher) update(ctx context.Context, site *docfx.Site, transformer *docfx.Transformer, job pageJob) (bool, error) {
	log := p.logger.WithFields(logrus.Fields{
		"uid":  job.ref.UID,
		"href": job.ref.Href,
		"page": job.pageID,
	})

	raw, baseDir, err := site.ReadPage(job.ref.Href)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("DocFX page file not found, skipping")
			return false, nil
		}
		p.metrics.PublishErrors.WithLabelValues(StageLoad).Inc()
		return false, fmt.Errorf("failed to read page for %s: %w", job.ref.UID, err)
	}

	content, err := transformer.Transform(baseDir, raw)
	if err != nil {
		p.metrics.PublishErrors.WithLabelValues(StageTransform).Inc()
		return false, fmt.Errorf("failed to transform page for %s: %w", job.ref.UID, err)
	}

	if p.opts.DryRun {
		log.WithField("title", job.ref.Title()).Info("Would update page")
		return true, nil
	}

	if err := p.client.UpdatePage(ctx, job.pageID, job.ref.Title(), content); err != nil {
		p.metrics.PublishErrors.WithLabelValues(StageUpdate).Inc()
		return false, fmt.Errorf("failed to update page %s for %s: %w", job.pageID, job.ref.UID, err)
	}
	props := confluence.DocFXProperties{UID: job.ref.UID, Href: job.ref.Href}
	if err := p.client.ReplaceDocFXProperty(ctx, job.pageID, props); err != nil {
		p.metrics.PublishErrors.WithLabelValues(StageUpdate).Inc()
		return false, fmt.Errorf("failed to update docfx property of page %s: %w", job.pageID, err)
	}

	p.metrics.PagesUpdated.Inc()
	log.Info("Updated page")
	return true, nil
}

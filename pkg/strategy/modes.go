package strategy

import (
	"context"
	"fmt"

	"github.com/entrhq/autofill/pkg/cluster"
	"github.com/entrhq/autofill/pkg/detector"
)

func (r *run) batch(ctx context.Context, fields []*detector.Field) error {
	if err := checkpoint(ctx); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	end := func() {}
	if r.progress != nil {
		end = r.progress.Begin(fmt.Sprintf("Matching %d fields", len(fields)))
	}
	results := r.match(ctx, requestsFor(fields, ""))
	end()

	for _, res := range results {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		i, ok := r.byIndex[res.FieldID]
		if !ok {
			continue
		}
		if !res.Matched() {
			r.set(res.FieldID, "", OutcomeUnmatched)
			continue
		}

		f := fields[i]
		unmark := r.highlight(f)
		err := r.apply(ctx, f, res.Key())
		if err == nil {
			sleep(ctx, r.pacing.AfterFill)
		}
		unmark()
		if err != nil {
			return err
		}
	}

	r.settle(fields)
	return nil
}

func (r *run) oneByOne(ctx context.Context, fields []*detector.Field) error {
	for _, f := range fields {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		if err := r.one(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) one(ctx context.Context, f *detector.Field) error {
	unmark := r.highlight(f)
	defer func() {
		unmark()
		sleep(ctx, r.pacing.AfterClear)
	}()

	sleep(ctx, r.pacing.Settle)

	var key string
	for _, res := range r.match(ctx, requestsFor([]*detector.Field{f}, "")) {
		if res.FieldID == f.Index {
			key = res.Key()
			break
		}
	}

	if key == "" {
		r.set(f.Index, "", OutcomeUnmatched)
		sleep(ctx, r.pacing.AfterMiss)
		return nil
	}
	if err := r.apply(ctx, f, key); err != nil {
		return err
	}
	sleep(ctx, r.pacing.AfterFill)
	return nil
}

func (r *run) cluster(ctx context.Context, fields []*detector.Field) error {
	clusters := cluster.Group(fields)
	r.logger.Debugf("Grouped %d fields into %d clusters", len(fields), len(clusters))

	for _, c := range clusters {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		if err := r.section(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) section(ctx context.Context, c cluster.Cluster) error {
	clears := make([]func(), len(c.Fields))
	for i, f := range c.Fields {
		clears[i] = r.highlight(f)
	}
	defer func() {
		for _, unmark := range clears {
			unmark()
		}
		sleep(ctx, r.pacing.ClusterClear)
	}()

	members := make(map[int]*detector.Field, len(c.Fields))
	for _, f := range c.Fields {
		members[f.Index] = f
	}

	for _, res := range r.match(ctx, requestsFor(c.Fields, c.SectionContext)) {
		f, ok := members[res.FieldID]
		if !ok || !res.Matched() {
			continue
		}
		if err := r.apply(ctx, f, res.Key()); err != nil {
			return err
		}
	}
	r.settle(c.Fields)

	sleep(ctx, r.pacing.clusterDwell(len(c.Fields)))
	return nil
}

package app

import (
	"context"
	"maps"
	"math/rand/v2"
	"regexp"
	"slices"

	"go.uber.org/zap"

	"shardwork/internal/checkpoint"
	"shardwork/internal/config"
	"shardwork/internal/errors"
	"shardwork/internal/storage"
	"shardwork/internal/worker"
)

// Resolution is the outcome of path resolution
type Resolution struct {
	Set         worker.WorkSet
	AlreadyDone int // skipped because a completion marker exists
	Filtered    int // dropped by path filters
}

// PathResolver expands source prefixes into aligned work items
type PathResolver struct {
	fs     storage.FileSystem
	logger *zap.Logger
}

// NewPathResolver creates a resolver over fs
func NewPathResolver(fs storage.FileSystem, logger *zap.Logger) *PathResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PathResolver{fs: fs, logger: logger}
}

// Resolve globs every source prefix of p, computes destination and marker
// paths, and drops filtered and already completed files. callKwargs are
// merged over each group's kwargs. A group whose source matches nothing is a
// configuration error.
func (r *PathResolver) Resolve(ctx context.Context, p config.Processor, callKwargs map[string]any) (Resolution, error) {
	var res Resolution

	regex := p.CompiledRegex()
	rng := rand.New(rand.NewPCG(uint64(p.Seed), 0))

	for i, src := range p.Sources {
		paths, err := r.expand(ctx, src, p.SkipSourceGlob)
		if err != nil {
			return Resolution{}, err
		}
		if len(paths) == 0 {
			return Resolution{}, errors.Configf("could not find any files matching %s", src)
		}

		_, rels, err := storage.RelativeTo(paths)
		if err != nil {
			return Resolution{}, errors.WrapConfig(err, "computing relative paths")
		}

		if p.Shuffle {
			rng.Shuffle(len(rels), func(a, b int) {
				rels[a], rels[b] = rels[b], rels[a]
				paths[a], paths[b] = paths[b], paths[a]
			})
		}

		var groupKwargs map[string]any
		if i < len(p.Kwargs) {
			groupKwargs = p.Kwargs[i]
		}

		for j, rel := range rels {
			if !validPath(rel, p.Include, p.Exclude, regex) {
				r.logger.Debug("Skipping filtered file", zap.String("path", rel))
				res.Filtered++
				continue
			}

			meta := checkpoint.MarkerPath(p.Metadata[i], rel)
			if !p.IgnoreExisting {
				done, err := r.fs.Exists(ctx, meta)
				if err != nil {
					return Resolution{}, errors.Wrapf(err, "checking completion marker %s", meta)
				}
				if done {
					r.logger.Debug("Skipping processed file", zap.String("path", rel))
					res.AlreadyDone++
					continue
				}
			}

			kwargs := maps.Clone(groupKwargs)
			if kwargs == nil {
				kwargs = make(map[string]any, len(callKwargs))
			}
			maps.Copy(kwargs, callKwargs)

			res.Set.Append(worker.WorkItem{
				Source:      paths[j],
				Destination: storage.AddSuffix(p.Destinations[i], rel),
				Metadata:    meta,
				Kwargs:      kwargs,
			})
		}
	}

	return res, nil
}

func (r *PathResolver) expand(ctx context.Context, src string, literal bool) ([]string, error) {
	if literal {
		return []string{src}, nil
	}
	paths, err := r.fs.Glob(ctx, src)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", src)
	}
	slices.Sort(paths)
	return paths, nil
}

// validPath reports whether rel passes the path filters
func validPath(rel string, include, exclude []string, regex *regexp.Regexp) bool {
	if len(include) > 0 && !slices.Contains(include, rel) {
		return false
	}
	if slices.Contains(exclude, rel) {
		return false
	}
	if regex != nil && !regex.MatchString(rel) {
		return false
	}
	return true
}

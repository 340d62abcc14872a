package hooks

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/resolver"
)

var kinds = map[api.ResolveKind]resolver.Kind{
	api.ResolveEntryPoint:        resolver.KindEntryPoint,
	api.ResolveJSImportStatement: resolver.KindImport,
	api.ResolveJSRequireCall:     resolver.KindRequire,
	api.ResolveJSDynamicImport:   resolver.KindDynamicImport,
	api.ResolveJSRequireResolve:  resolver.KindRequireResolve,
	api.ResolveCSSImportRule:     resolver.KindCSSImport,
	api.ResolveCSSComposesFrom:   resolver.KindCSSComposes,
	api.ResolveCSSURLToken:       resolver.KindCSSURL,
}

// Kind converts an esbuild resolve kind. Unknown kinds map to a plain import.
func Kind(k api.ResolveKind) resolver.Kind {
	if kind, ok := kinds[k]; ok {
		return kind
	}
	return resolver.KindImport
}

// loadedNamespaces are the namespaces the engine serves content for.
var loadedNamespaces = []resolver.Namespace{resolver.NamespaceVirtual, resolver.NamespaceRemote}

// ESBuild adapts p to an esbuild plugin. Every import is routed through
// p.OnResolve; loads are requested for the virtual and remote namespaces.
// ctx is handed to every OnLoad call so a cancelled build stops outstanding
// fetches.
func ESBuild(ctx context.Context, p Plugin) api.Plugin {
	return api.Plugin{
		Name: p.Name(),
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					res, err := p.OnResolve(ResolveArgs{
						Path:       args.Path,
						Importer:   args.Importer,
						Kind:       Kind(args.Kind),
						Namespace:  args.Namespace,
						PluginData: args.PluginData,
					})
					if err != nil {
						return api.OnResolveResult{}, err
					}
					if res.External {
						return api.OnResolveResult{Path: res.Path, External: true}, nil
					}
					return api.OnResolveResult{
						Path:       res.Path,
						Namespace:  res.Namespace.String(),
						PluginData: res.PluginData,
						Errors:     messages(p.Name(), res.Errors),
					}, nil
				})

			for _, ns := range loadedNamespaces {
				build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: ns.String()},
					func(args api.OnLoadArgs) (api.OnLoadResult, error) {
						res, err := p.OnLoad(ctx, LoadArgs{
							Path:       args.Path,
							Namespace:  resolver.Namespace(args.Namespace),
							PluginData: args.PluginData,
						})
						if err != nil {
							return api.OnLoadResult{}, err
						}
						if len(res.Errors) > 0 {
							return api.OnLoadResult{Errors: messages(p.Name(), res.Errors)}, nil
						}
						contents := res.Contents
						return api.OnLoadResult{
							Contents: &contents,
							Loader:   res.Loader.ESBuild(),
						}, nil
					})
			}

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				p.OnEnd(EndResult{
					Errors:   fromESBuild(result.Errors),
					Warnings: fromESBuild(result.Warnings),
					Outputs:  len(result.OutputFiles),
				})
				return api.OnEndResult{}, nil
			})
		},
	}
}

func messages(plugin string, msgs []Message) []api.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = api.Message{Text: m.Text, PluginName: plugin}
	}
	return out
}

func fromESBuild(msgs []api.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Text: m.Text}
	}
	return out
}

package api

import (
	"github.com/tain335/stylepack/internal/assets"
	"github.com/tain335/stylepack/internal/extract"
	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/meta"
	"github.com/tain335/stylepack/internal/processor"
	"github.com/tain335/stylepack/internal/render"
)

// Types shared with hosts and option callbacks.
type (
	Host         = graph.Host
	Resolver     = graph.Resolver
	ResolverFunc = graph.ResolverFunc
	Resolved     = graph.Resolved
	Emitter      = graph.Emitter
	Artifact     = graph.Artifact
	Chunk        = graph.Chunk
	EmittedAsset = graph.EmittedAsset
	EmittedStyle = graph.EmittedStyle
	MemoryHost   = graph.MemoryHost

	ModuleMeta = meta.ModuleMeta
	InputItem  = meta.InputItem

	PreserveDir = assets.PreserveDir
	Inline      = assets.Inline
	FileHook    = assets.FileHook

	ProcessorInput  = processor.Input
	ProcessorOutput = processor.Output
	ProcessFunc     = processor.ProcessFunc
	PatternFunc     = processor.PatternFunc
	UserStrategy    = processor.UserStrategy
	SassOptions     = processor.SassOptions
	ModulesOptions  = processor.ModulesOptions

	ExtractStrategy = extract.Strategy
	ExtractModule   = extract.Module
	ExtractResult   = extract.Result
	ExtractPartial  = extract.Partial
	ExtractDecision = extract.Decision

	URLContext   = render.URLContext
	URLFormatter = render.URLFormatter
)

var (
	NewMemoryHost = graph.NewMemoryHost

	PreserveNever      = assets.Never
	PreserveAlways     = assets.Always
	PreserveStyles     = assets.StylesOnly
	PreserveAssets     = assets.AssetsOnly
	PreserveFunc       = assets.PreserveFunc
	ParsePreserveDir   = assets.ParsePreserveDir
	InlineNever        = assets.InlineNever
	InlineAlways       = assets.InlineAlways
	InlineUnder        = assets.InlineUnder
	InlineMatching     = assets.InlineMatching
	InlineFunc         = assets.InlineFunc
	ParseInline        = assets.ParseInline
	ProcessorsDisabled = processor.Disabled
	ProcessorsSingle   = processor.Single
	ProcessorsPattern  = processor.Patterned

	ExtractDefault  = extract.Default
	ExtractCustom   = extract.Custom
	ExtractDisabled = extract.Disabled
	ExtractAccept   = extract.Accept
	ExtractOverride = extract.Override
	ExtractSuppress = extract.Suppress
)

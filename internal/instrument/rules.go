// Package instrument - Selection policy tables.
//
// These tables are literal data: the exact type and method names the
// transformers select. They are kept apart from the transformer logic so
// they can be reviewed (and, if needed, loaded from elsewhere) without
// touching the algorithms.
package instrument

// Thread-affinity policy.
const (
	// OwnerCapability marks the owner role: the constructors of every type
	// that directly implements it record the owning thread.
	OwnerCapability = "com.badlogic.gdx.Graphics"

	// AffinityTagSuffix opts any method of any type into the owner check.
	// The leading dot anchors the match on a name segment, so
	// "com.example.RequireGLThread" selects the method and
	// "com.example.NotRequireGLThread" does not.
	AffinityTagSuffix = ".RequireGLThread"

	// AffinityMarker tags modules instrumented by AffinityTransformer.
	AffinityMarker = "modguard.marker.AffinityChecked"
)

// affinityRule selects methods of one type for the owner check.
type affinityRule struct {
	constructors bool
	methods      map[string]bool
}

// affinityRules is the per-type rule table. Every listed type also has all
// of its constructors checked.
var affinityRules = map[string]affinityRule{
	"com.badlogic.gdx.scenes.scene2d.ui.Label": {
		constructors: true,
		methods: setOf(
			"setStyle",
			"setText",
			"computePrefSize",
			"layout",
			"draw",
			"getPrefWidth",
			"getPrefHeight",
			"setWrap",
			"setAlignment",
			"setFontScale",
			"setFontScaleX",
			"setFontScaleY",
		),
	},
	"com.badlogic.gdx.scenes.scene2d.ui.TextField": {
		constructors: true,
		methods: setOf(
			"letterUnderCursor",
			"wordUnderCursor",
			"setStyle",
			"calculateOffsets",
			"draw",
			"getTextY",
			"drawSelection",
			"drawText",
			"drawMessageText",
			"drawCursor",
			"updateDisplayText",
			"copy",
			"cut",
			"paste",
			"insert",
			"delete",
			"next",
			"findNextTextField",
			"setTextFieldListener",
			"setTextFieldFilter",
			"setFocusTraversal",
			"setMessageText",
			"appendText",
			"setText",
			"changeText",
			"getSelection",
			"setSelection",
			"selectAll",
			"clearSelection",
			"setCursorPosition",
			"setOnscreenKeyboard",
			"setClipboard",
			"getPrefHeight",
			"setAlignment",
			"setPasswordMode",
			"setPasswordCharacter",
			"moveCursor",
			"continueCursor",
		),
	},
}

// Constant-drift policy.
const (
	// DriftMarker tags modules instrumented by DriftTransformer.
	DriftMarker = "modguard.marker.DriftWatched"

	// SnapshotPrefix starts the name of every injected snapshot field.
	SnapshotPrefix = SyntheticPrefix + "snapshot$"
)

// driftWatched lists the types whose static fields are watched. A non-nil
// value restricts watching to the named fields; the others are legitimately
// reassigned at runtime.
var driftWatched = map[string]map[string]bool{
	"com.badlogic.gdx.math.Vector3":   setOf("X", "Y", "Z", "Zero"),
	"com.badlogic.gdx.graphics.Color": nil,
}

// Leak policy.
var (
	// ReleaseSpec tracks types that own a disposable resource.
	ReleaseSpec = LeakSpec{
		Name:          "leak(dispose)",
		Capability:    "com.badlogic.gdx.utils.Disposable",
		ReleaseMethod: "dispose",
		Marker:        "modguard.marker.DisposeTracked",
	}

	// CloseableSpec tracks types that own a closeable resource.
	CloseableSpec = LeakSpec{
		Name:          "leak(close)",
		Capability:    "java.lang.AutoCloseable",
		ReleaseMethod: "close",
		Marker:        "modguard.marker.CloseTracked",
	}
)

// LeakDenyPrefixes exclude types, and everything that reaches the release
// capability only through them. Their sub-resources already report leaks
// of their own, or they need not be released at all.
var LeakDenyPrefixes = []string{
	"com.badlogic.gdx.graphics.g3d.particles.influencers.DynamicsModifier",
	"com.badlogic.gdx.graphics.g3d.particles.ParticleControllerComponent",
	"com.badlogic.gdx.graphics.g2d.PixmapPacker",
	"com.badlogic.gdx.maps.Map",
}

// doubleReleaseSafe lists types whose own release method may be called
// more than once. Matched by exact name; subtypes are tracked.
var doubleReleaseSafe = setOf(
	"com.badlogic.gdx.graphics.Texture",
)

// finalizeExempt maps a type to the runtime types for which the leak check
// in its finalize is skipped. A Texture or Cubemap is reported by its own
// tracking, not by the shared GLTexture base.
var finalizeExempt = map[string][]string{
	"com.badlogic.gdx.graphics.GLTexture": {
		"com.badlogic.gdx.graphics.Texture",
		"com.badlogic.gdx.graphics.Cubemap",
	},
}

func setOf(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

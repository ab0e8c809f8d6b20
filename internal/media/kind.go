package media

// Kind identifies what class of media a discovered file is.
type Kind string

const (
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindSubtitle Kind = "subtitle"
	KindIgnore   Kind = "ignore"
)

type capability struct {
	convert bool
	move    bool
}

var capabilities = map[Kind]capability{
	KindVideo:    {convert: true, move: true},
	KindAudio:    {convert: true, move: true},
	KindSubtitle: {convert: false, move: true},
	KindIgnore:   {convert: false, move: false},
}

// ParseKind maps a stored kind string back to a Kind. The boolean reports
// whether the string names a known kind.
func ParseKind(s string) (Kind, bool) {
	kind := Kind(s)
	_, ok := capabilities[kind]
	return kind, ok
}

// Convertible reports whether items of this kind go through the transcoder.
func (k Kind) Convertible() bool {
	return capabilities[k].convert
}

// Relocatable reports whether items of this kind belong in the library.
func (k Kind) Relocatable() bool {
	return capabilities[k].move
}

package treefs

// NodeRequest has the caller-supplied fields for creating a node
type NodeRequest struct {
	Path     string
	Type     NodeCreateRequestType
	Perms    *uint32 // i.e. 0755; nil uses the configured default for Type
	OwnerUID uint32
	OwnerGID uint32
}

// NodeCreateRequestType valid types are FileNodeType "file", DirNodeType "dir"
type NodeCreateRequestType string

const (
	FileNodeType NodeCreateRequestType = "file"
	DirNodeType  NodeCreateRequestType = "dir"
)

// Kind maps the request type to the persisted node kind; ok is false for
// unrecognized types
func (t NodeCreateRequestType) Kind() (kind NodeKind, ok bool) {
	switch t {
	case FileNodeType:
		return FileKind, true
	case DirNodeType:
		return DirKind, true
	}
	return 0, false
}

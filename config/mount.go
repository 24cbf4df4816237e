package config

// MountOptions holds the kernel-facing mount settings.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug      bool   // fuse debug logs
	FsName     string // mount's FsName, shown as the source in /proc/mounts
	Name       string // mount's Name, the fuse.<name> subtype
	AllowOther bool   // let users other than the mounter access the tree
}

package osutil

import "os"

const (
	PermissionOwnerReadWriteOthersRead  os.FileMode = 0644
	PermissionOnlyOwnerReadWrite        os.FileMode = 0600
	PermissionOnlyOwnerAll              os.FileMode = 0700 // For directories
	PermissionOwnerAllOthersReadExecute os.FileMode = 0755
)

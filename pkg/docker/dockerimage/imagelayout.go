package dockerimage

const (
	ManifestFileName     = "manifest.json"
	RepositoriesFileName = "repositories"

	//<layer id>/layer.tar
	LayerFileName = "layer.tar"
)

// ContentAddressPrefix is the name prefix of the content addressed blobs
const ContentAddressPrefix = "sha256:"

// TagSeparator separates the repository name from the tag in a repo tag
const TagSeparator = ":"

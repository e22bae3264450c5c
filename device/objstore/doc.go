// Package objstore provides a block device backed by an object store.
//
// Each block of a resource is stored as its own object, so block transfers map
// to single GET and PUT requests:
//
//	<prefix>/<resource>/<block>.blk
//
// Blocks are optionally compressed with LZ4 or ZSTD. The logical size of a
// resource (its extent) is kept separately by an ExtentStore, either as a
// small object next to the blocks or in a DynamoDB table with conditional
// writes for safe concurrent use.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := objstore.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "cache/")
//	dev := objstore.New(store, 4096, objstore.WithCodec(objstore.CodecLZ4))
//
//	c, _ := pagecache.New(4096, 1024, pagecache.WithDevice(dev))
//
// Block objects missing inside the extent read as zeros.
package objstore

package main

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/pagecache/device"
	"github.com/hupe1980/pagecache/device/objstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// creatingMemory creates missing resources on open so gen can target it.
type creatingMemory struct {
	*device.Memory
}

func (m creatingMemory) Open(ctx context.Context, name string) (device.File, error) {
	if _, ok := m.Bytes(name); !ok {
		m.Put(name, nil)
	}
	return m.Memory.Open(ctx, name)
}

// buildDevice constructs the configured device. With create set, opening a
// missing resource creates it.
func buildDevice(ctx context.Context, cfg Config, create bool) (device.Device, error) {
	dc := cfg.Device

	switch dc.Kind {
	case "memory":
		if create {
			return creatingMemory{device.NewMemory()}, nil
		}
		return device.NewMemory(), nil

	case "s3":
		awsCfg, err := config.LoadDefaultConfig(ctx, func(o *config.LoadOptions) error {
			if dc.Region != "" {
				o.Region = dc.Region
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if dc.Endpoint != "" {
				o.BaseEndpoint = aws.String(dc.Endpoint)
				o.UsePathStyle = true
			}
		})
		opts, err := objstoreOptions(dc, create)
		if err != nil {
			return nil, err
		}
		if dc.ExtentTable != "" {
			ddb := dynamodb.NewFromConfig(awsCfg)
			opts = append(opts, objstore.WithExtentStore(objstore.NewDynamoExtents(ddb, dc.ExtentTable, dc.Bucket+"/"+dc.Prefix)))
		}
		return objstore.New(objstore.NewS3Store(client, dc.Bucket, dc.Prefix), cfg.BlockSize, opts...), nil

	case "minio":
		client, err := minio.New(dc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(dc.AccessKey, dc.SecretKey, ""),
			Secure: dc.Secure,
		})
		if err != nil {
			return nil, err
		}
		opts, err := objstoreOptions(dc, create)
		if err != nil {
			return nil, err
		}
		return objstore.New(objstore.NewMinioStore(client, dc.Bucket, dc.Prefix), cfg.BlockSize, opts...), nil

	default:
		opts := []device.LocalOption{device.WithDirectIO(cfg.directIO())}
		if create {
			opts = append(opts, device.WithCreate(os.FileMode(0o644)))
		}
		return device.NewLocal(opts...), nil
	}
}

func objstoreOptions(dc DeviceConfig, create bool) ([]objstore.Option, error) {
	codec, err := objstore.ParseCodec(dc.Codec)
	if err != nil {
		return nil, err
	}
	opts := []objstore.Option{objstore.WithCodec(codec)}
	if create {
		opts = append(opts, objstore.WithCreate())
	}
	return opts, nil
}

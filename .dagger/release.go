package main

import (
	"context"
	"fmt"
	"path"

	"dagger/genrelay/internal/dagger"
)

// bucketCreds are the S3-compatible credentials used for artifact uploads.
type bucketCreds struct {
	endpoint        *dagger.Secret
	bucket          *dagger.Secret
	accessKeyId     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// upload syncs artifacts to the bucket under prefix
func (g *Genrelay) upload(
	ctx context.Context,
	artifacts *dagger.Directory,
	prefix string,
	creds bucketCreds,
) error {
	bucketName, err := creds.bucket.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket name: %w", err)
	}

	endpointUrl, err := creds.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get endpoint: %w", err)
	}

	destination := fmt.Sprintf("s3://%s", path.Join(bucketName, prefix))

	_, err = dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", creds.accessKeyId).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", creds.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts").
		WithExec([]string{
			"aws", "s3", "sync", ".",
			destination,
			"--endpoint-url", endpointUrl,
		}).
		Sync(ctx)
	if err != nil {
		return fmt.Errorf("failed to upload artifacts: %w", err)
	}

	return nil
}

// ReleaseLatest builds release binaries and uploads them under both the
// version prefix and "latest"
func (g *Genrelay) ReleaseLatest(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucket *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	creds := bucketCreds{endpoint, bucket, accessKeyId, secretAccessKey}
	artifacts := g.BuildRelease(ctx, version, commit)

	for _, prefix := range []string{version, "latest"} {
		if err := g.upload(ctx, artifacts, prefix, creds); err != nil {
			return artifacts, fmt.Errorf("could not upload %s release artifacts: %w", prefix, err)
		}
	}

	return artifacts, nil
}

// Nightly builds and uploads nightly artifacts
func (g *Genrelay) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucket *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	prefix := "nightly"
	artifacts := g.BuildRelease(ctx, prefix, commit)
	err := g.upload(ctx, artifacts, prefix, bucketCreds{endpoint, bucket, accessKeyId, secretAccessKey})
	return artifacts, err
}

// PublishImage builds the relay container and pushes it to address,
// returning the pushed image reference.
func (g *Genrelay) PublishImage(
	ctx context.Context,

	// Image address, e.g. "ghcr.io/papercomputeco/genrelay:v1.0.0"
	address string,

	// Version string of build
	version string,

	// Git commit SHA
	commit string,

	// Registry username
	username string,

	// Registry password or token
	password *dagger.Secret,
) (string, error) {
	return g.Container(ctx, version, commit).
		WithRegistryAuth(address, username, password).
		Publish(ctx, address)
}

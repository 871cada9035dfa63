// Genrelay CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/genrelay/internal/dagger"
)

// Genrelay is the main module for the genrelay CI/CD pipeline
type Genrelay struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Genrelay CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", ".genrelay", "build", "tmp"]
	source *dagger.Directory,
) *Genrelay {
	return &Genrelay{
		Source: source,
	}
}

// goContainer returns a Go container with the project source mounted and the
// module and build caches attached. genrelay is pure Go so CGO stays off.
//
// It is the shared foundation for tests, builds, and linting.
func (g *Genrelay) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithEnvVariable("CGO_ENABLED", "0").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", g.Source)
}

// Test runs the genrelay unit tests via "go test"
func (g *Genrelay) Test(ctx context.Context) (string, error) {
	return g.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}

// TestRace runs the relay and worker packages under the race detector. The
// race detector needs CGO.
func (g *Genrelay) TestRace(ctx context.Context) (string, error) {
	return g.goContainer().
		WithEnvVariable("CGO_ENABLED", "1").
		WithExec([]string{"go", "test", "-race", "./relay/...", "./pkg/sse/..."}).
		Stdout(ctx)
}

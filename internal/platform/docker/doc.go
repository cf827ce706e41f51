// Package docker runs task images as Docker containers and searches Docker
// Hub through the daemon. It implements task.ProcessRunner and
// task.ImageSearcher on top of the Docker Engine API client.
package docker

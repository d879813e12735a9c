package provider

import (
	"encoding/base64"
	"fmt"
	"os"
)

// imageData returns the raw image bytes for a task input, reading from
// disk when only a path was supplied.
func imageData(input Input) ([]byte, error) {
	if len(input.ImageBytes) > 0 {
		return input.ImageBytes, nil
	}
	if input.ImagePath != "" {
		data, err := os.ReadFile(input.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("no image provided")
}

// imageDataURL encodes the image as a data URL for OpenAI-style vision
// message parts.
func imageDataURL(input Input) (string, error) {
	data, err := imageData(input)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// taskNeedsImage reports whether a task is meaningless without the image.
// Fusion works from prior stage text alone.
func taskNeedsImage(task Task) bool {
	return task != TaskFusion
}

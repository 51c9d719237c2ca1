// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package agent

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/easel/pkg/types"
)

// ContentKind tags which content-assembly strategy a turn uses. Exactly
// one strategy applies per turn, chosen once at construction.
type ContentKind int

const (
	// ContentNone sends plain text only.
	ContentNone ContentKind = iota
	// ContentAnnotatedSelections sends selection screenshots with their
	// shape annotations, plus any uploaded images.
	ContentAnnotatedSelections
	// ContentShapeImages sends shape screenshots without annotation
	// metadata.
	ContentShapeImages
	// ContentUploadedImagesOnly sends user-uploaded images.
	ContentUploadedImagesOnly
)

func (k ContentKind) String() string {
	switch k {
	case ContentAnnotatedSelections:
		return "annotated_selections"
	case ContentShapeImages:
		return "shape_images"
	case ContentUploadedImagesOnly:
		return "uploaded_images_only"
	default:
		return "none"
	}
}

// UploadedImage is a user-supplied image reference.
type UploadedImage struct {
	// Data is the base64-encoded image payload.
	Data string
	// MIMEType is the image media type, e.g. image/png.
	MIMEType string
}

// ShapeAnnotation describes one selected shape in an annotated selection.
type ShapeAnnotation struct {
	ShapeID string
	Kind    string
	Label   string
	Note    string
}

// AnnotatedSelection pairs a selection screenshot with the structured
// annotations describing what was selected.
type AnnotatedSelection struct {
	Image       UploadedImage
	Annotations []ShapeAnnotation
}

// TurnContent is the assembled user content for one turn.
type TurnContent struct {
	Kind       ContentKind
	Text       string
	Selections []AnnotatedSelection
	Images     []UploadedImage
}

// AssembleContent builds the user content for one turn. The strategy is
// decided here, once, in priority order: annotated selections, then shape
// images, then uploaded images, then plain text. Optional context blocks
// are prepended to the user text, blank-line separated, in the order
// custom rules, canvas state, user text.
func AssembleContent(userText, customRules, canvasState string,
	selections []AnnotatedSelection, shapeImages, uploads []UploadedImage) TurnContent {

	var blocks []string
	if customRules != "" {
		blocks = append(blocks, customRules)
	}
	if canvasState != "" {
		blocks = append(blocks, canvasState)
	}
	if userText != "" {
		blocks = append(blocks, userText)
	}
	text := strings.Join(blocks, "\n\n")

	switch {
	case len(selections) > 0:
		return TurnContent{
			Kind:       ContentAnnotatedSelections,
			Text:       text,
			Selections: selections,
			Images:     uploads,
		}
	case len(shapeImages) > 0:
		return TurnContent{Kind: ContentShapeImages, Text: text, Images: shapeImages}
	case len(uploads) > 0:
		return TurnContent{Kind: ContentUploadedImagesOnly, Text: text, Images: uploads}
	default:
		return TurnContent{Kind: ContentNone, Text: text}
	}
}

// Message converts the assembled content into a user message.
func (tc TurnContent) Message() types.Message {
	if tc.Kind == ContentNone {
		return types.Message{Role: "user", Content: tc.Text}
	}

	var blocks []types.ContentBlock
	if tc.Text != "" {
		blocks = append(blocks, types.ContentBlock{Type: "text", Text: tc.Text})
	}

	if tc.Kind == ContentAnnotatedSelections {
		for _, sel := range tc.Selections {
			blocks = append(blocks, imageBlock(sel.Image))
			if note := describeAnnotations(sel.Annotations); note != "" {
				blocks = append(blocks, types.ContentBlock{Type: "text", Text: note})
			}
		}
	}
	for _, img := range tc.Images {
		blocks = append(blocks, imageBlock(img))
	}

	return types.Message{Role: "user", ContentBlocks: blocks}
}

func imageBlock(img UploadedImage) types.ContentBlock {
	return types.ContentBlock{
		Type: "image",
		Image: &types.ImageContent{
			Source: types.ImageSource{
				Type:      "base64",
				MediaType: img.MIMEType,
				Data:      img.Data,
			},
		},
	}
}

// describeAnnotations renders shape annotations as text the model can
// correlate with the preceding selection image.
func describeAnnotations(annotations []ShapeAnnotation) string {
	if len(annotations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Selected shapes:")
	for _, a := range annotations {
		b.WriteString(fmt.Sprintf("\n- %s (%s)", a.Kind, a.ShapeID))
		if a.Label != "" {
			b.WriteString(": " + a.Label)
		}
		if a.Note != "" {
			b.WriteString(" [" + a.Note + "]")
		}
	}
	return b.String()
}

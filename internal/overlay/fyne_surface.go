package overlay

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"

	"screenveil/internal/logger"
)

// FyneSurface is the overlay surface backed by a borderless full-screen
// fyne window. The fyne event loop is the render context: every state
// mutation and repaint goes through fyne.Do. The window content is a
// free-layout container holding one positioned image per obscured
// region; pixels outside the regions are never drawn, which keeps the
// rest of the display visible through the overlay.
type FyneSurface struct {
	window  fyne.Window
	content *fyne.Container
	paint   func() ProcessedFrame
	log     logger.Logger
}

func NewFyneSurface(fyneApp fyne.App, log logger.Logger) *FyneSurface {
	window := fyneApp.NewWindow("screenveil overlay")
	window.SetPadded(false)
	window.SetFullScreen(true)

	content := container.NewWithoutLayout()
	window.SetContent(content)

	return &FyneSurface{
		window:  window,
		content: content,
		log:     log,
	}
}

// SetPaintSource wires the renderer's BeginPaint in. Must be called
// before Attach.
func (s *FyneSurface) SetPaintSource(paint func() ProcessedFrame) {
	s.paint = paint
}

func (s *FyneSurface) Attach() error {
	fyne.Do(func() {
		s.window.Show()
	})
	s.log.Info("OverlaySurface", "surface attached", nil)
	return nil
}

func (s *FyneSurface) Detach() error {
	fyne.Do(func() {
		s.window.Hide()
	})
	s.log.Info("OverlaySurface", "surface detached", nil)
	return nil
}

// RunOnRenderContext queues fn onto the fyne event loop. Calls are
// executed in submission order, so a swap queued before a repaint is
// always visible to that repaint.
func (s *FyneSurface) RunOnRenderContext(fn func()) {
	fyne.Do(fn)
}

func (s *FyneSurface) RequestRepaint() {
	fyne.Do(func() {
		s.content.Objects = regionImages(s.paint(), s.log)
		s.content.Refresh()
	})
}

// regionImages crops the processed buffer to each obscured region and
// positions the crop at its screen-space rectangle. An empty frame
// draws nothing.
func regionImages(pf ProcessedFrame, log logger.Logger) []fyne.CanvasObject {
	if pf.Buffer == nil {
		return nil
	}

	mat := pf.Buffer.Mat()
	bounds := image.Rect(0, 0, pf.Buffer.Width(), pf.Buffer.Height())
	objects := make([]fyne.CanvasObject, 0, len(pf.Regions))

	for _, region := range pf.Regions {
		crop := region.Processing.Intersect(bounds)
		if crop.Empty() || region.Screen.Empty() {
			continue
		}

		// Clone detaches the crop from the buffer so the drawn pixels
		// survive the buffer's release after the next swap.
		roi := mat.Region(crop)
		cropped := roi.Clone()
		roi.Close()
		img, err := cropped.ToImage()
		cropped.Close()
		if err != nil {
			log.Error("OverlaySurface", err, map[string]interface{}{
				"buffer_id": pf.Buffer.ID(),
			})
			continue
		}

		ci := canvas.NewImageFromImage(img)
		ci.FillMode = canvas.ImageFillStretch
		ci.Move(fyne.NewPos(float32(region.Screen.Min.X), float32(region.Screen.Min.Y)))
		ci.Resize(fyne.NewSize(float32(region.Screen.Dx()), float32(region.Screen.Dy())))
		objects = append(objects, ci)
	}

	return objects
}

package storage

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/rendergraph/rhi"
)

// UploadImage resamples img to the extent of mip 0 of a texture and writes
// it. RGBA8Unorm, BGRA8Unorm and R8Unorm textures are supported; R8 takes
// the luminance of img.
func (st *Storage) UploadImage(h rhi.TextureHandle, img image.Image) error {
	e, ok := st.textures.Get(h)
	if !ok || e.view != nil {
		return fmt.Errorf("upload texture %d: %w", h, ErrUnknownHandle)
	}
	if img == nil {
		return fmt.Errorf("upload texture %q: %w: nil image", e.desc.Label, ErrInvalidDescription)
	}

	rect := image.Rect(0, 0, int(e.desc.Width), int(e.desc.Height))
	var pixels []byte
	switch e.desc.Format {
	case gputypes.TextureFormatRGBA8Unorm:
		pixels = resampleRGBA(rect, img).Pix
	case gputypes.TextureFormatBGRA8Unorm:
		pixels = resampleRGBA(rect, img).Pix
		for i := 0; i+3 < len(pixels); i += 4 {
			pixels[i], pixels[i+2] = pixels[i+2], pixels[i]
		}
	case gputypes.TextureFormatR8Unorm:
		dst := image.NewGray(rect)
		xdraw.ApproxBiLinear.Scale(dst, rect, img, img.Bounds(), xdraw.Src, nil)
		pixels = dst.Pix
	default:
		return fmt.Errorf("upload texture %q: %w: format %v", e.desc.Label, ErrUnsupportedUsage, e.desc.Format)
	}

	if err := st.device.WriteTexture(h, pixels); err != nil {
		return fmt.Errorf("upload texture %q: %w", e.desc.Label, err)
	}
	slogger().Debug("storage: image uploaded",
		"handle", h, "src", img.Bounds().Size(), "dst", rect.Size())
	return nil
}

func resampleRGBA(rect image.Rectangle, img image.Image) *image.RGBA {
	dst := image.NewRGBA(rect)
	if img.Bounds().Size() == rect.Size() {
		xdraw.Copy(dst, image.Point{}, img, img.Bounds(), xdraw.Src, nil)
		return dst
	}
	xdraw.ApproxBiLinear.Scale(dst, rect, img, img.Bounds(), xdraw.Src, nil)
	return dst
}

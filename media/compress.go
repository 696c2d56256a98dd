package media

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Prepared 是可以直接交给渲染器的图片。
type Prepared struct {
	Path   string
	Width  int
	Height int
}

// Compressor 把图片缩放到最大边长以内并按质量重新编码，减小 PDF 体积。
// 带透明通道的图片保存为 PNG，其余保存为 JPEG。
type Compressor struct {
	Quality      int
	MaxDimension int
	OutDir       string
}

// Prepare 返回压缩后的图片。压缩失败但原图可解码时返回原图。
func (c Compressor) Prepare(path string) (Prepared, error) {
	f, err := os.Open(path)
	if err != nil {
		return Prepared{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Prepared{}, fmt.Errorf("解码图片 %s 失败: %w", path, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Prepared{}, fmt.Errorf("图片 %s 尺寸为 0", path)
	}
	orig := Prepared{Path: path, Width: b.Dx(), Height: b.Dy()}

	out, err := c.encode(path, img)
	if err != nil {
		return orig, nil
	}
	return out, nil
}

func (c Compressor) encode(path string, img image.Image) (Prepared, error) {
	quality := c.Quality
	if quality < 1 || quality > 100 {
		quality = 60
	}
	img = fit(img, c.MaxDimension)
	alpha := hasAlpha(img)

	ext := ".jpg"
	if alpha {
		ext = ".png"
	}
	dir := c.OutDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	key := strconv.FormatUint(xxhash.Sum64String(path+"|"+strconv.Itoa(quality)+"|"+strconv.Itoa(c.MaxDimension)), 16)
	dst := filepath.Join(dir, "compressed_"+key+ext)
	b := img.Bounds()
	if nonEmpty(dst) {
		return Prepared{Path: dst, Width: b.Dx(), Height: b.Dy()}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Prepared{}, err
	}
	tmp, err := os.CreateTemp(dir, ".compress-*")
	if err != nil {
		return Prepared{}, err
	}
	if alpha {
		err = png.Encode(tmp, img)
	} else {
		err = jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality})
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return Prepared{}, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return Prepared{}, err
	}
	return Prepared{Path: dst, Width: b.Dx(), Height: b.Dy()}, nil
}

// fit 等比缩放到最长边不超过 maxDim。
func fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

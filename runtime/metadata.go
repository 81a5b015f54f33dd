package runtime

import "github.com/wippyai/bfbridge/pixel"

// Metadata summarizes the open file at the current series and resolution.
type Metadata struct {
	Format          string     `yaml:"format"`
	CurrentFile     string     `yaml:"current_file"`
	DimensionOrder  string     `yaml:"dimension_order"`
	UsedFiles       []string   `yaml:"used_files"`
	SeriesCount     int        `yaml:"series_count"`
	ResolutionCount int        `yaml:"resolution_count"`
	SizeX           int        `yaml:"size_x"`
	SizeY           int        `yaml:"size_y"`
	SizeC           int        `yaml:"size_c"`
	SizeZ           int        `yaml:"size_z"`
	SizeT           int        `yaml:"size_t"`
	EffectiveSizeC  int        `yaml:"effective_size_c"`
	ImageCount      int        `yaml:"image_count"`
	TileWidth       int        `yaml:"tile_width"`
	TileHeight      int        `yaml:"tile_height"`
	PixelType       pixel.Type `yaml:"-"`
	PixelTypeName   string     `yaml:"pixel_type"`
	BitsPerPixel    int        `yaml:"bits_per_pixel"`
	BytesPerPixel   int        `yaml:"bytes_per_pixel"`
	RGBChannelCount int        `yaml:"rgb_channel_count"`
	MPPX            float64    `yaml:"mpp_x"`
	MPPY            float64    `yaml:"mpp_y"`
	MPPZ            float64    `yaml:"mpp_z"`
	RGB             bool       `yaml:"rgb"`
	Interleaved     bool       `yaml:"interleaved"`
	LittleEndian    bool       `yaml:"little_endian"`
	IndexedColor    bool       `yaml:"indexed_color"`
	FalseColor      bool       `yaml:"false_color"`
	OrderCertain    bool       `yaml:"order_certain"`
}

// Metadata collects every scalar property of the open file. MPP values are
// read for series 0.
func (s *Session) Metadata() (Metadata, error) {
	var (
		m   Metadata
		err error
	)
	str := func(dst *string, fn func() (string, error)) {
		if err == nil {
			*dst, err = fn()
		}
	}
	num := func(dst *int, fn func() (int, error)) {
		if err == nil {
			*dst, err = fn()
		}
	}
	flag := func(dst *bool, fn func() (bool, error)) {
		if err == nil {
			*dst, err = fn()
		}
	}
	mpp := func(dst *float64, fn func(int) (float64, error)) {
		if err == nil {
			*dst, err = fn(0)
		}
	}

	str(&m.Format, s.Format)
	str(&m.CurrentFile, s.CurrentFile)
	str(&m.DimensionOrder, s.DimensionOrder)
	num(&m.SeriesCount, s.SeriesCount)
	num(&m.ResolutionCount, s.ResolutionCount)
	num(&m.SizeX, s.SizeX)
	num(&m.SizeY, s.SizeY)
	num(&m.SizeC, s.SizeC)
	num(&m.SizeZ, s.SizeZ)
	num(&m.SizeT, s.SizeT)
	num(&m.EffectiveSizeC, s.EffectiveSizeC)
	num(&m.ImageCount, s.ImageCount)
	num(&m.TileWidth, s.OptimalTileWidth)
	num(&m.TileHeight, s.OptimalTileHeight)
	num(&m.BitsPerPixel, s.BitsPerPixel)
	num(&m.BytesPerPixel, s.BytesPerPixel)
	num(&m.RGBChannelCount, s.RGBChannelCount)
	flag(&m.RGB, s.IsRGB)
	flag(&m.Interleaved, s.IsInterleaved)
	flag(&m.LittleEndian, s.IsLittleEndian)
	flag(&m.IndexedColor, s.IsIndexedColor)
	flag(&m.FalseColor, s.IsFalseColor)
	flag(&m.OrderCertain, s.IsOrderCertain)
	mpp(&m.MPPX, s.MPPX)
	mpp(&m.MPPY, s.MPPY)
	mpp(&m.MPPZ, s.MPPZ)
	if err == nil {
		m.PixelType, err = s.PixelType()
		m.PixelTypeName = m.PixelType.String()
	}
	if err == nil {
		m.UsedFiles, err = s.UsedFiles()
	}
	if err != nil {
		return Metadata{}, err
	}
	return m, nil
}

package latencyopts

type optionNonblocking struct {
	v bool
}

func Nonblocking(v bool) Option {
	return &optionNonblocking{
		v: v,
	}
}

func (o *optionNonblocking) Type() OptionType {
	return TypeNonblocking
}

func (o *optionNonblocking) Value() interface{} {
	return o.v
}

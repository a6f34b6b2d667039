package benchmark

import (
	"strings"
	"testing"

	"github.com/reviewpulse/reviewpulse/internal/similarity/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "Great food and friendly service",
	"medium": `We came in on a Saturday night without a reservation and were seated
        within ten minutes. The waiter recommended the braised short rib, which was
        tender and full of flavor. Prices are on the higher side but the portions
        justify it. The only downside was the noise level near the bar.`,
	"long": strings.Repeat(`The restaurant sits on a quiet corner downtown with plenty of
        street parking. Inside, the lighting is warm and the tables are spaced far
        enough apart for a private conversation. We started with the calamari, which
        arrived crisp and hot, followed by the seafood risotto and the house burger.
        Dessert was a disappointment, the tiramisu tasted like it had been frozen.
        Service throughout the evening was attentive without being intrusive. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func BenchmarkTerms(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		terms := tokenizer.Terms(text, 2)
		_ = terms
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tokens := tokenizer.Tokenize(text)
			_ = tokens
		}
	})
}

package intent

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
)

// vectorIndex é imutável depois de publicado em Classifier.index.
type vectorIndex struct {
	entries []domain.PatternVector
}

func (idx *vectorIndex) best(query []float32) (domain.IntentResult, bool) {
	var (
		best  domain.IntentResult
		found bool
	)
	for _, e := range idx.entries {
		sim, err := CosineSimilarity(query, e.Vector)
		if err != nil {
			continue
		}
		score := math.Min(1.0, sim+0.02*float64(e.Priority))
		if !found || score > best.Confidence {
			best = domain.IntentResult{Intent: e.Intent, Confidence: math.Max(0, score), Method: domain.MethodEmbedding}
			found = true
		}
	}
	return best, found
}

// CosineSimilarity calcula a similaridade de cosseno entre dois vetores.
// Vetores de tamanhos diferentes são erro; vetor nulo tem similaridade 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// CorpusHash identifica o conjunto atual de padrões para um modelo.
// Qualquer mudança em nomes, prioridades ou padrões gera outro hash.
func (c *Classifier) CorpusHash(model string) string {
	h, _ := blake2b.New256(nil)
	writeString := func(s string) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	writeString(model)
	for _, in := range c.intents {
		writeString(in.name)
		writeString(fmt.Sprint(in.priority))
		for _, p := range in.patterns {
			writeString(p.text)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Warmup carrega (ou gera) os vetores dos padrões e publica o índice.
// Roda em background no startup; até terminar, Classify usa só padrões.
// Se o embedder falhar aqui, a camada é desligada de vez.
func (c *Classifier) Warmup(ctx context.Context) error {
	if c.embedder == nil || c.disabled.Load() {
		return nil
	}
	ctx, span := tracer.Start(ctx, "Classifier.Warmup")
	defer span.End()

	if c.cfg.WarmupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WarmupTimeout)
		defer cancel()
	}

	model := c.embedder.Name()
	key := c.CorpusHash(model)
	pairs := c.pairs()

	if c.vectors != nil {
		set, err := c.vectors.Load(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("vector cache unreadable, regenerating", zap.Error(err))
		case set != nil && c.validSet(set, key, len(pairs)):
			c.index.Store(&vectorIndex{entries: set.Vectors})
			c.logger.Info("pattern vectors loaded from cache",
				zap.String("model", model),
				zap.Int("vectors", len(set.Vectors)),
			)
			return nil
		case set != nil:
			c.logger.Info("pattern corpus changed, regenerating vectors", zap.String("model", model))
		}
	}

	start := time.Now()
	vectors, err := c.encode(ctx, pairs)
	if err != nil {
		c.Disable(err)
		return fmt.Errorf("encoding pattern corpus: %w", err)
	}
	set := &domain.VectorSet{Key: key, Model: model, Vectors: vectors, CreatedAt: time.Now().UTC()}
	c.index.Store(&vectorIndex{entries: set.Vectors})
	c.logger.Info("pattern vectors generated",
		zap.String("model", model),
		zap.Int("vectors", len(vectors)),
		zap.Duration("took", time.Since(start)),
	)

	if c.vectors != nil {
		if err := c.vectors.Save(ctx, set); err != nil {
			c.logger.Warn("saving vector cache failed", zap.Error(err))
		}
	}
	return nil
}

func (c *Classifier) pairs() []domain.PatternVector {
	var out []domain.PatternVector
	for _, in := range c.intents {
		for _, p := range in.patterns {
			out = append(out, domain.PatternVector{Intent: in.name, Priority: in.priority, Pattern: p.text})
		}
	}
	return out
}

func (c *Classifier) validSet(set *domain.VectorSet, key string, want int) bool {
	if set.Key != key || len(set.Vectors) != want || want == 0 {
		return false
	}
	dim := len(set.Vectors[0].Vector)
	for _, v := range set.Vectors {
		if len(v.Vector) == 0 || len(v.Vector) != dim {
			return false
		}
	}
	return true
}

// encode gera os vetores em lotes paralelos. Os lotes escrevem em
// posições disjuntas do slice de saída.
func (c *Classifier) encode(ctx context.Context, pairs []domain.PatternVector) ([]domain.PatternVector, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no patterns to encode")
	}
	batch := c.cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	out := make([]domain.PatternVector, len(pairs))
	copy(out, pairs)

	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.Workers > 0 {
		g.SetLimit(c.cfg.Workers)
	}
	for start := 0; start < len(out); start += batch {
		end := min(start+batch, len(out))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, p := range out[start:end] {
				texts = append(texts, p.Pattern)
			}
			vecs, err := c.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
			}
			for i, v := range vecs {
				if len(v) == 0 {
					return fmt.Errorf("empty vector for pattern %q", texts[i])
				}
				out[start+i].Vector = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

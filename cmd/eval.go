package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/candlelight-ml/candela/pkg/candela"
	"github.com/candlelight-ml/candela/pkg/data"
)

// NewEvalCommand returns the eval command. It loads a checkpoint and a
// dataset, runs the forward pass over every batch and reports the three
// training losses plus perplexity. Loss weighting and optimization are the
// training loop's concern; the losses are reported independently.
func NewEvalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a checkpoint on a dataset",
		Long: `
Evaluate a candela checkpoint on a JSONL dataset.

Reports the word loss, sentence-type loss, phrase-attention loss and masked
perplexity averaged over the corpus.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := candela.LoadModelFile(RootArgs.modelPath)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			vocab, err := data.LoadVocab(RootArgs.vocabPath)
			if err != nil {
				return fmt.Errorf("failed to load vocabulary: %w", err)
			}
			if vocab.Size() != model.WordVocabSize {
				return fmt.Errorf("vocabulary has %d entries but model was trained with %d",
					vocab.Size(), model.WordVocabSize)
			}
			loader, err := data.NewLoader(RootArgs.datasetPath, vocab, RootArgs.batchSize)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}
			var wdSum, stSum, attnSum, pplSum float64
			n := loader.NumBatches()
			for i := 0; i < n; i++ {
				batch, err := loader.NextBatch()
				if err != nil {
					return err
				}
				out, err := model.Forward(batch)
				if err != nil {
					return err
				}
				wdLoss := candela.SequenceLoss(out.WordReadouts, batch.WordTargets, batch.DecInputLen, model.WordVocabSize)
				stLoss := candela.SequenceLoss(out.SentTypeReadouts, batch.SentTypes, batch.SentLen, candela.SentenceTypeCount)
				attnLoss := candela.PhraseAttentionLoss(batch.PhraseSelInd, out.PhraseAttnProbs, batch.PhraseAttnMask)
				ppl := candela.Perplexity(out.WordReadouts, batch.WordTargets, batch.DecInputLen, model.WordVocabSize)
				log.Debug("batch evaluated",
					"batch", i,
					"word_loss", wdLoss,
					"sent_type_loss", stLoss,
					"phrase_attn_loss", attnLoss,
					"ppl", ppl,
				)
				wdSum += wdLoss
				stSum += stLoss
				attnSum += attnLoss
				pplSum += ppl
			}
			log.Info("evaluation complete",
				"batches", n,
				"word_loss", wdSum/float64(n),
				"sent_type_loss", stSum/float64(n),
				"phrase_attn_loss", attnSum/float64(n),
				"ppl", pplSum/float64(n),
			)
			return nil
		},
	}
	cmd.Flags().
		StringVarP(&RootArgs.modelPath, "model-path", "m", "model.ckpt", "Path to the checkpoint file")
	cmd.Flags().
		StringVarP(&RootArgs.vocabPath, "vocab-path", "c", "vocab.txt", "Path to the vocabulary file")
	cmd.Flags().
		StringVarP(&RootArgs.datasetPath, "dataset-path", "d", "dataset.jsonl", "Path to the dataset file")
	cmd.Flags().
		IntVarP(&RootArgs.batchSize, "batch-size", "b", 16, "Batch size")
	return cmd
}
